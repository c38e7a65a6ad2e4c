package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shineum/sealpost/internal/keypacket"
	"github.com/shineum/sealpost/internal/rsvp"
)

// keyPacketFile describes an auto-added event whose address key packet
// must be shared with its calendar: where the event lives, the packet, the
// keys that open it and the calendar keys to wrap it for.
type keyPacketFile struct {
	CalendarID       string            `yaml:"calendar_id"`
	EventID          string            `yaml:"event_id"`
	AddressKeyPacket string            `yaml:"address_key_packet"`
	Address          senderFile        `yaml:"address"`
	CalendarKeys     []calendarKeyFile `yaml:"calendar_keys"`
}

type calendarKeyFile struct {
	ID         string `yaml:"id"`
	PrivateKey string `yaml:"private_key"`
	Active     bool   `yaml:"active"`
	Primary    bool   `yaml:"primary"`
}

func loadKeyPacketFile(path string) (*keyPacketFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key packet file: %w", err)
	}

	var f keyPacketFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse key packet file: %w", err)
	}

	if f.CalendarID == "" || f.EventID == "" {
		return nil, errors.New("key packet file needs calendar_id and event_id")
	}

	return &f, nil
}

// upload shares the event's address key packet with its calendar.
func (f *keyPacketFile) upload(ctx context.Context, uploader *keypacket.Uploader, event rsvp.Event, defaultSchema string) error {
	req := requestFile{Sender: f.Address}

	address, err := req.sender(defaultSchema)
	if err != nil {
		return err
	}

	addressKR, err := address.Unlock()
	if err != nil {
		return fmt.Errorf("failed to unlock address keys: %w", err)
	}
	defer addressKR.ClearPrivateParams()

	event.CalendarID = f.CalendarID
	event.APIEventID = f.EventID
	event.AddressKeyPacket = f.AddressKeyPacket

	return uploader.Upload(ctx, event, f.calendarKeys(), addressKR)
}

func (f *keyPacketFile) calendarKeys() []keypacket.CalendarKey {
	keys := make([]keypacket.CalendarKey, 0, len(f.CalendarKeys))

	for i, k := range f.CalendarKeys {
		id := k.ID
		if id == "" {
			id = fmt.Sprintf("calendar-key-%d", i+1)
		}

		var flags keypacket.KeyFlag
		if k.Active {
			flags |= keypacket.KeyFlagActive
		}
		if k.Primary {
			flags |= keypacket.KeyFlagPrimary
		}

		keys = append(keys, keypacket.CalendarKey{ID: id, PrivateKey: k.PrivateKey, Flags: flags})
	}

	return keys
}
