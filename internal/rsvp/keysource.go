package rsvp

// KeySource names the key ring that opens an event's key packet.
type KeySource int

const (
	// KeySourceNone means the event carries no encrypted parts.
	KeySourceNone KeySource = iota
	// KeySourceCalendar means the shared key packet is opened with the
	// calendar keys.
	KeySourceCalendar
	// KeySourceAddress means the address key packet is opened with the
	// current user's address keys. Events auto-added from an invitation
	// start out this way.
	KeySourceAddress
)

func (s KeySource) String() string {
	switch s {
	case KeySourceCalendar:
		return "calendar"
	case KeySourceAddress:
		return "address"
	default:
		return "none"
	}
}

// KeyPacket returns the key packet of the event and the key ring that opens
// it. The shared key packet takes precedence.
func (e Event) KeyPacket() (string, KeySource) {
	switch {
	case e.SharedKeyPacket != "":
		return e.SharedKeyPacket, KeySourceCalendar
	case e.AddressKeyPacket != "":
		return e.AddressKeyPacket, KeySourceAddress
	default:
		return "", KeySourceNone
	}
}
