// Package srp registers the SRP verifier that lets a recipient of an
// encrypted-to-outside message authenticate with the shared password.
package srp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	gosrp "github.com/ProtonMail/go-srp"
	"github.com/shineum/sealpost/internal/api"
)

const (
	authVersion    = 4
	saltBits       = 80
	verifierLength = 2048
)

// ErrVerifierFailed marks local failures while computing the verifier.
var ErrVerifierFailed = errors.New("failed to generate password verifier")

// ModulusFetcher provides a fresh signed SRP modulus.
type ModulusFetcher interface {
	GetModulus(ctx context.Context) (api.Modulus, error)
}

// PasswordAuth is the verifier registration sent along with an
// encrypted-to-outside package.
type PasswordAuth struct {
	ModulusID string
	Version   int
	Salt      string
	Verifier  string
}

// Registrar computes password verifiers.
type Registrar struct {
	fetcher ModulusFetcher

	// verifier computes the raw verifier; replaced in tests since the
	// modulus must carry a valid server signature.
	verifier func(password []byte, signedModulus string, salt []byte) ([]byte, error)
}

// NewRegistrar returns a Registrar that fetches its modulus from fetcher.
func NewRegistrar(fetcher ModulusFetcher) *Registrar {
	return &Registrar{fetcher: fetcher, verifier: generateVerifier}
}

// Register fetches a modulus, draws a random salt and computes the verifier
// for password. Modulus fetch failures are returned unchanged so callers can
// tell them apart from ErrVerifierFailed.
func (r *Registrar) Register(ctx context.Context, password []byte) (PasswordAuth, error) {
	mod, err := r.fetcher.GetModulus(ctx)
	if err != nil {
		return PasswordAuth{}, fmt.Errorf("failed to fetch modulus: %w", err)
	}

	salt, err := gosrp.RandomBits(saltBits)
	if err != nil {
		return PasswordAuth{}, fmt.Errorf("%w: %v", ErrVerifierFailed, err)
	}

	verifier, err := r.verifier(password, mod.Modulus, salt)
	if err != nil {
		return PasswordAuth{}, fmt.Errorf("%w: %v", ErrVerifierFailed, err)
	}

	return PasswordAuth{
		ModulusID: mod.ModulusID,
		Version:   authVersion,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Verifier:  base64.StdEncoding.EncodeToString(verifier),
	}, nil
}

func generateVerifier(password []byte, signedModulus string, salt []byte) ([]byte, error) {
	auth, err := gosrp.NewAuthForVerifier(password, signedModulus, salt)
	if err != nil {
		return nil, err
	}

	return auth.GenerateVerifier(verifierLength)
}
