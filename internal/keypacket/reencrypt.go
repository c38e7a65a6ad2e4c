// Package keypacket moves event session keys between key rings so that an
// event auto-added from an invitation becomes readable through its
// calendar.
package keypacket

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

var (
	ErrKeyPacketNotBase64              = errors.New("key packet is not valid base64")
	ErrReEncryptionFailed              = errors.New("failed to re-encrypt key packet")
	ErrMissingActivePrimaryCalendarKey = errors.New("missing active primary calendar key")
	ErrMissingAddressKeyPacket         = errors.New("event has no address key packet")
)

// KeyFlag is a bit of CalendarKey.Flags.
type KeyFlag int

const (
	KeyFlagActive  KeyFlag = 1 << 0
	KeyFlagPrimary KeyFlag = 1 << 1
)

// CalendarKey is an armored calendar private key as the server returns it.
type CalendarKey struct {
	ID           string
	PassphraseID string
	PrivateKey   string
	Flags        KeyFlag
}

// ActivePrimary reports whether the key is both active and primary.
func (k CalendarKey) ActivePrimary() bool {
	return k.Flags&KeyFlagActive != 0 && k.Flags&KeyFlagPrimary != 0
}

// PublicKeyRing returns a key ring holding the public part of the key.
func (k CalendarKey) PublicKeyRing() (*crypto.KeyRing, error) {
	key, err := crypto.NewKeyFromArmored(k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar key %s: %w", k.ID, err)
	}

	armored, err := key.GetArmoredPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key of calendar key %s: %w", k.ID, err)
	}

	public, err := crypto.NewKeyFromArmored(armored)
	if err != nil {
		return nil, err
	}

	return crypto.NewKeyRing(public)
}

// ReEncryptor transplants a session key from one key ring to another
// without touching the data it protects.
type ReEncryptor struct{}

// ReEncryptedKeyPacket opens the base64 address key packet with decryption
// and wraps the same session key for calendarKey. The result is base64.
func (ReEncryptor) ReEncryptedKeyPacket(addressKeyPacket string, calendarKey *crypto.KeyRing, decryption *crypto.KeyRing) (string, error) {
	packet, err := base64.StdEncoding.DecodeString(strings.TrimSpace(addressKeyPacket))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyPacketNotBase64, err)
	}

	if decryption == nil || calendarKey == nil {
		return "", fmt.Errorf("%w: missing key ring", ErrReEncryptionFailed)
	}

	sk, err := decryption.DecryptSessionKey(packet)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReEncryptionFailed, err)
	}

	reEncrypted, err := calendarKey.EncryptSessionKey(sk)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReEncryptionFailed, err)
	}

	if len(reEncrypted) == 0 {
		return "", fmt.Errorf("%w: empty key packet", ErrReEncryptionFailed)
	}

	return base64.StdEncoding.EncodeToString(reEncrypted), nil
}
