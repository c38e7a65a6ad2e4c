// Package send plans and builds the per-recipient packages of an outgoing
// message and assembles them into the send request body.
package send

import (
	"context"
	"errors"
	"fmt"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/shineum/sealpost/internal/email"
	"github.com/shineum/sealpost/internal/srp"
)

// Scheme is the per-recipient encryption scheme. Values are the wire tags
// and can be OR-ed into the Type bitmask of a package group.
type Scheme int

const (
	SchemeInternal         Scheme = 1
	SchemeEncryptedOutside Scheme = 2
	SchemeClear            Scheme = 4
	SchemePGPInline        Scheme = 8
	SchemePGPMIME          Scheme = 16
	SchemeClearMIME        Scheme = 32
)

// Schemes lists every scheme in wire order.
var Schemes = []Scheme{
	SchemeInternal,
	SchemeEncryptedOutside,
	SchemeClear,
	SchemePGPInline,
	SchemePGPMIME,
	SchemeClearMIME,
}

func (s Scheme) String() string {
	switch s {
	case SchemeInternal:
		return "internal"
	case SchemeEncryptedOutside:
		return "encrypted_outside"
	case SchemeClear:
		return "clear"
	case SchemePGPInline:
		return "pgp_inline"
	case SchemePGPMIME:
		return "pgp_mime"
	case SchemeClearMIME:
		return "clear_mime"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// ParseScheme is the inverse of Scheme.String.
func ParseScheme(s string) (Scheme, error) {
	for _, scheme := range Schemes {
		if scheme.String() == s {
			return scheme, nil
		}
	}

	return 0, fmt.Errorf("unknown scheme %q", s)
}

// IsClear reports whether the scheme delivers the message unencrypted.
func (s Scheme) IsClear() bool {
	return s == SchemeClear || s == SchemeClearMIME
}

// IsMIME reports whether the scheme uses the MIME body variant.
func (s Scheme) IsMIME() bool {
	return s == SchemePGPMIME || s == SchemeClearMIME
}

// MIMEType is the body format sent to a recipient.
type MIMEType string

const (
	MIMETypeHTML      MIMEType = "text/html"
	MIMETypePlainText MIMEType = "text/plain"
	MIMETypeMIME      MIMEType = "multipart/mixed"
)

// SendPreferences is the resolved encryption policy of one recipient.
type SendPreferences struct {
	Encrypt    bool
	Sign       bool
	Scheme     Scheme
	MIMEType   MIMEType
	PublicKeys *crypto.KeyRing
}

// HasPublicKeys reports whether at least one recipient key is present.
func (p SendPreferences) HasPublicKeys() bool {
	return p.PublicKeys != nil && p.PublicKeys.CountEntities() > 0
}

// PlainText reports whether the recipient gets the plain text body.
func (p SendPreferences) PlainText() bool {
	return p.MIMEType == MIMETypePlainText
}

// PreAttachment is an uploaded attachment and the session key of its
// encrypted content.
type PreAttachment struct {
	ID         string
	SessionKey *crypto.SessionKey
	Attachment email.Attachment
}

// Body is one encrypted variant of the message body: its data packet and
// the session key that opens it.
type Body struct {
	DataPacket []byte
	SessionKey *crypto.SessionKey
}

// AddressPackage is the package of a single recipient.
type AddressPackage struct {
	Email     string `json:"-"`
	PlainText bool   `json:"-"`

	Type                 Scheme
	Signature            int
	BodyKeyPacket        string            `json:",omitempty"`
	AttachmentKeyPackets map[string]string `json:",omitempty"`

	// Set only for SchemeEncryptedOutside.
	*OutsidePackage
}

// OutsidePackage carries what a recipient outside the service needs to
// open a password protected message.
type OutsidePackage struct {
	Token        string
	EncToken     string
	Auth         srp.PasswordAuth
	PasswordHint string `json:",omitempty"`
}

// SessionKeyPackage is an unencrypted session key exposed to the server for
// clear recipients.
type SessionKeyPackage struct {
	Key       string
	Algorithm string
}

// PasswordVerifier registers the SRP verifier of an outside password.
type PasswordVerifier interface {
	Register(ctx context.Context, password []byte) (srp.PasswordAuth, error)
}

var (
	ErrMIMEDataNotPrepared      = errors.New("mime data not prepared")
	ErrPlainTextDataNotPrepared = errors.New("plain text data not prepared")
	ErrMissingOutsidePassword   = errors.New("missing outside password")
	ErrMissingPublicKey         = errors.New("missing recipient public key")
	ErrMissingVerifier          = errors.New("missing password verifier")
	ErrSessionKeyFailedToCreate = errors.New("session key failed to create")
	ErrPackagesFailedToCreate   = errors.New("packages failed to create")
)
