package keypacket

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/bradenaw/juniper/xslices"
	"github.com/shineum/sealpost/internal/api"
	"github.com/shineum/sealpost/internal/rsvp"
)

// EventKeyPacketUpdater stores a new shared key packet for an event.
type EventKeyPacketUpdater interface {
	UpdateEventKeyPacket(ctx context.Context, calendarID, eventID string, req api.UpdateEventKeyPacketReq) error
}

// Uploader gives an auto-added event a shared key packet wrapped for the
// calendar's primary key.
type Uploader struct {
	reEncryptor ReEncryptor
	updater     EventKeyPacketUpdater
}

// NewUploader returns an uploader storing key packets through updater.
func NewUploader(updater EventKeyPacketUpdater) *Uploader {
	return &Uploader{updater: updater}
}

// Upload re-encrypts the event's address key packet for the active primary
// calendar key and sends it to the server. decryption holds the current
// user's unlocked address keys.
func (u *Uploader) Upload(ctx context.Context, event rsvp.Event, calendarKeys []CalendarKey, decryption *crypto.KeyRing) error {
	if event.AddressKeyPacket == "" {
		return ErrMissingAddressKeyPacket
	}

	idx := xslices.IndexFunc(calendarKeys, CalendarKey.ActivePrimary)
	if idx < 0 {
		return ErrMissingActivePrimaryCalendarKey
	}

	calendarKR, err := calendarKeys[idx].PublicKeyRing()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReEncryptionFailed, err)
	}

	packet, err := u.reEncryptor.ReEncryptedKeyPacket(event.AddressKeyPacket, calendarKR, decryption)
	if err != nil {
		return err
	}

	if err := u.updater.UpdateEventKeyPacket(ctx, event.CalendarID, event.APIEventID, api.UpdateEventKeyPacketReq{
		SharedKeyPacket: packet,
	}); err != nil {
		return fmt.Errorf("failed to upload key packet: %w", err)
	}

	slog.Info("uploaded event key packet", "calendar_id", event.CalendarID, "event_id", event.APIEventID, "key_id", calendarKeys[idx].ID)

	return nil
}

// EventSessionKey opens the key packet of an event with the key ring its
// source calls for. It returns nil when the event has no key packet.
func EventSessionKey(event rsvp.Event, calendarKR, addressKR *crypto.KeyRing) (*crypto.SessionKey, error) {
	encoded, source := event.KeyPacket()

	var kr *crypto.KeyRing

	switch source {
	case rsvp.KeySourceNone:
		return nil, nil
	case rsvp.KeySourceCalendar:
		kr = calendarKR
	case rsvp.KeySourceAddress:
		kr = addressKR
	}

	if kr == nil {
		return nil, fmt.Errorf("missing %v key ring", source)
	}

	packet, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyPacketNotBase64, err)
	}

	sk, err := kr.DecryptSessionKey(packet)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %v key packet: %w", source, err)
	}

	return sk, nil
}
