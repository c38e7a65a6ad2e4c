// Package pgp wraps the gopenpgp primitives used to package outgoing
// messages: session key handling, split messages and key packets.
package pgp

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ProtonMail/gopenpgp/v2/constants"
	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// DefaultAlgorithm is the symmetric cipher used when none is given.
const DefaultAlgorithm = constants.AES256

var (
	ErrEmptySessionKey = errors.New("session key is empty")
	ErrEmptyKeyPacket  = errors.New("key packet is empty")
	ErrNoEncryptionKey = errors.New("no encryption key")
)

// GenerateSessionKey returns a fresh random session key for algo.
func GenerateSessionKey(algo string) (*crypto.SessionKey, error) {
	if algo == "" {
		algo = DefaultAlgorithm
	}

	sk, err := crypto.GenerateSessionKeyAlgo(algo)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	return sk, nil
}

// EncodeSessionKey returns the standard base64 form of the raw key bytes.
func EncodeSessionKey(sk *crypto.SessionKey) (string, error) {
	if sk == nil || len(sk.Key) == 0 {
		return "", ErrEmptySessionKey
	}

	return base64.StdEncoding.EncodeToString(sk.Key), nil
}

// DecodeSessionKey is the inverse of EncodeSessionKey.
func DecodeSessionKey(encoded, algo string) (*crypto.SessionKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session key: %w", err)
	}

	if len(raw) == 0 {
		return nil, ErrEmptySessionKey
	}

	if algo == "" {
		algo = DefaultAlgorithm
	}

	return crypto.NewSessionKeyFromToken(raw, algo), nil
}

// EncryptAndSplit encrypts plain to encKR, signs it with signKR when that
// is non-nil, and splits the result into its key and data packets.
func EncryptAndSplit(plain []byte, encKR, signKR *crypto.KeyRing) (*crypto.PGPSplitMessage, error) {
	if encKR == nil {
		return nil, ErrNoEncryptionKey
	}

	enc, err := encKR.Encrypt(crypto.NewPlainMessage(plain), signKR)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message: %w", err)
	}

	split, err := enc.SplitMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to split message: %w", err)
	}

	return split, nil
}

// EncryptKeyPacket wraps sk for the keys in kr and returns the base64
// encoded key packet.
func EncryptKeyPacket(sk *crypto.SessionKey, kr *crypto.KeyRing) (string, error) {
	if sk == nil || len(sk.Key) == 0 {
		return "", ErrEmptySessionKey
	}

	if kr == nil || kr.CountEntities() == 0 {
		return "", ErrNoEncryptionKey
	}

	packet, err := kr.EncryptSessionKey(sk)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt session key: %w", err)
	}

	return encodePacket(packet)
}

// EncryptKeyPacketWithPassword wraps sk symmetrically with password and
// returns the base64 encoded key packet.
func EncryptKeyPacketWithPassword(sk *crypto.SessionKey, password []byte) (string, error) {
	if sk == nil || len(sk.Key) == 0 {
		return "", ErrEmptySessionKey
	}

	if len(password) == 0 {
		return "", errors.New("password is empty")
	}

	packet, err := crypto.EncryptSessionKeyWithPassword(sk, password)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt session key with password: %w", err)
	}

	return encodePacket(packet)
}

// DecryptKeyPacket decodes a base64 key packet and recovers its session
// key with kr.
func DecryptKeyPacket(encoded string, kr *crypto.KeyRing) (*crypto.SessionKey, error) {
	packet, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key packet: %w", err)
	}

	if len(packet) == 0 {
		return nil, ErrEmptyKeyPacket
	}

	sk, err := kr.DecryptSessionKey(packet)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session key: %w", err)
	}

	return sk, nil
}

func encodePacket(packet []byte) (string, error) {
	if len(packet) == 0 {
		return "", ErrEmptyKeyPacket
	}

	return base64.StdEncoding.EncodeToString(packet), nil
}
