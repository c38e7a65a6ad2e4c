package pgp

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/bradenaw/juniper/parallel"
)

// Schema selects how the sender's address keys are unlocked.
type Schema int

const (
	// SchemaLegacy unlocks a single address key directly with the mailbox
	// passphrase.
	SchemaLegacy Schema = iota
	// SchemaAddressKeys unlocks every address key through its token, which
	// is encrypted to the user key.
	SchemaAddressKeys
)

func (s Schema) String() string {
	switch s {
	case SchemaLegacy:
		return "legacy"
	case SchemaAddressKeys:
		return "address_keys"
	default:
		return fmt.Sprintf("Schema(%d)", int(s))
	}
}

// ParseSchema maps a configuration value onto a Schema.
func ParseSchema(s string) (Schema, error) {
	switch strings.ToLower(s) {
	case "legacy":
		return SchemaLegacy, nil
	case "address_keys":
		return SchemaAddressKeys, nil
	default:
		return 0, fmt.Errorf("unknown key schema %q", s)
	}
}

var (
	ErrMissingPassphrase     = errors.New("missing user passphrase")
	ErrMissingAddressKey     = errors.New("missing primary address key")
	ErrNoAddressKeysUnlocked = errors.New("failed to unlock any address keys")
)

// AddressKey is a locked, armored address private key. Token is the armored
// key passphrase encrypted and signed by the user key; it is empty for keys
// created before address key tokens existed.
type AddressKey struct {
	ID         string
	PrivateKey string
	Token      string
	Primary    bool
}

// Sender holds the key material of the sending address.
type Sender struct {
	Schema Schema

	// Passphrase is the salted mailbox passphrase.
	Passphrase []byte

	// UserKeys are the armored user private keys, needed by
	// SchemaAddressKeys to open the address key tokens.
	UserKeys []string

	// AddressKeys are the keys of the sending address, primary first.
	AddressKeys []AddressKey
}

// Unlock returns a key ring holding the unlocked address keys.
func (s Sender) Unlock() (*crypto.KeyRing, error) {
	if len(s.Passphrase) == 0 {
		return nil, ErrMissingPassphrase
	}

	if len(s.AddressKeys) == 0 {
		return nil, ErrMissingAddressKey
	}

	switch s.Schema {
	case SchemaLegacy:
		return s.unlockLegacy()
	case SchemaAddressKeys:
		return s.unlockAddressKeys()
	default:
		return nil, fmt.Errorf("unknown key schema %v", s.Schema)
	}
}

// EncryptToSelf encrypts and signs plain with the sender's own keys and
// returns the data packet together with the session key that opens it.
func (s Sender) EncryptToSelf(plain []byte) ([]byte, *crypto.SessionKey, error) {
	kr, err := s.Unlock()
	if err != nil {
		return nil, nil, err
	}

	split, err := EncryptAndSplit(plain, kr, kr)
	if err != nil {
		return nil, nil, err
	}

	sk, err := kr.DecryptSessionKey(split.GetBinaryKeyPacket())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt session key: %w", err)
	}

	return split.GetBinaryDataPacket(), sk, nil
}

func (s Sender) unlockLegacy() (*crypto.KeyRing, error) {
	key := s.primary()

	unlocked, err := unlockKey(key.PrivateKey, s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock address key %s: %w", key.ID, err)
	}

	return crypto.NewKeyRing(unlocked)
}

func (s Sender) unlockAddressKeys() (*crypto.KeyRing, error) {
	userKR, err := s.unlockUserKeys()
	if err != nil {
		return nil, err
	}

	keys := parallel.Map(runtime.NumCPU(), s.AddressKeys, func(key AddressKey) *crypto.Key {
		passphrase := s.Passphrase

		if key.Token != "" {
			token, err := decryptToken(key.Token, userKR)
			if err != nil {
				slog.Warn("failed to decrypt address key token", "key_id", key.ID, "error", err)
				return nil
			}

			passphrase = token
		}

		unlocked, err := unlockKey(key.PrivateKey, passphrase)
		if err != nil {
			slog.Warn("failed to unlock address key", "key_id", key.ID, "error", err)
			return nil
		}

		return unlocked
	})

	addrKR, err := crypto.NewKeyRing(nil)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if key == nil {
			continue
		}

		if err := addrKR.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add address key: %w", err)
		}
	}

	if addrKR.CountDecryptionEntities() == 0 {
		return nil, ErrNoAddressKeysUnlocked
	}

	return addrKR, nil
}

func (s Sender) unlockUserKeys() (*crypto.KeyRing, error) {
	userKR, err := crypto.NewKeyRing(nil)
	if err != nil {
		return nil, err
	}

	for _, armored := range s.UserKeys {
		key, err := unlockKey(armored, s.Passphrase)
		if err != nil {
			slog.Warn("failed to unlock user key", "error", err)
			continue
		}

		if err := userKR.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add user key: %w", err)
		}
	}

	if userKR.CountDecryptionEntities() == 0 {
		return nil, errors.New("failed to unlock any user keys")
	}

	return userKR, nil
}

// primary returns the key flagged primary, or the first one.
func (s Sender) primary() AddressKey {
	for _, key := range s.AddressKeys {
		if key.Primary {
			return key
		}
	}

	return s.AddressKeys[0]
}

func unlockKey(armored string, passphrase []byte) (*crypto.Key, error) {
	key, err := crypto.NewKeyFromArmored(armored)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	return key.Unlock(passphrase)
}

func decryptToken(armored string, userKR *crypto.KeyRing) ([]byte, error) {
	msg, err := crypto.NewPGPMessageFromArmored(armored)
	if err != nil {
		return nil, err
	}

	plain, err := userKR.Decrypt(msg, userKR, crypto.GetUnixTime())
	if err != nil {
		return nil, err
	}

	return plain.GetBinary(), nil
}
