package send

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/bradenaw/juniper/xslices"
	"github.com/shineum/sealpost/internal/email"
	"github.com/shineum/sealpost/internal/mime"
	"github.com/shineum/sealpost/internal/pgp"
)

type recipient struct {
	email string
	prefs SendPreferences
}

// RequestBuilder accumulates the inputs of a send request. Nothing is
// validated when inputs are added; Draft freezes them and all planning and
// building happens on the Draft.
type RequestBuilder struct {
	eml *mime.EMLBuilder

	body      Body
	clearBody string

	password []byte
	hint     string

	expiresIn    int64
	delaySeconds int64

	recipients  []recipient
	attachments []PreAttachment

	mime      *Body
	plainText *Body
}

// NewRequestBuilder returns an empty builder. eml renders the PGP/MIME body.
func NewRequestBuilder(eml *mime.EMLBuilder) *RequestBuilder {
	return &RequestBuilder{eml: eml}
}

// UpdateBody sets the encrypted HTML body and its session key.
func (b *RequestBuilder) UpdateBody(body Body) {
	b.body = body
}

// SetClearBody sets the decrypted HTML body used to derive the MIME and
// plain text variants.
func (b *RequestBuilder) SetClearBody(body string) {
	b.clearBody = body
}

// SetPassword sets the password and optional hint for recipients outside
// the service.
func (b *RequestBuilder) SetPassword(password []byte, hint string) {
	b.password = slices.Clone(password)
	b.hint = hint
}

// SetExpiration sets the message lifetime in seconds. Zero means none.
func (b *RequestBuilder) SetExpiration(seconds int64) {
	b.expiresIn = seconds
}

// SetDelay sets the undo-send delay in seconds.
func (b *RequestBuilder) SetDelay(seconds int64) {
	b.delaySeconds = seconds
}

// Add records the send preferences of a recipient. Adding the same address
// again replaces its preferences but keeps its original position.
func (b *RequestBuilder) Add(address string, prefs SendPreferences) {
	if idx := xslices.IndexFunc(b.recipients, func(r recipient) bool { return r.email == address }); idx >= 0 {
		b.recipients[idx].prefs = prefs
		return
	}

	b.recipients = append(b.recipients, recipient{email: address, prefs: prefs})
}

// AddAttachment records an attachment of the message.
func (b *RequestBuilder) AddAttachment(att PreAttachment) {
	b.attachments = append(b.attachments, att)
}

// BuildMIME renders the multipart/related document of the message,
// encrypts and signs it with the sender's keys and keeps the resulting data
// packet and session key as the MIME body. bodies maps attachment IDs to
// their base64 decrypted content.
func (b *RequestBuilder) BuildMIME(sender pgp.Sender, bodies map[string]string) error {
	doc, err := b.eml.BuildRelated(b.clearBody, b.attachmentList(), bodies)
	if err != nil {
		return fmt.Errorf("failed to build mime body: %w", err)
	}

	dataPacket, sk, err := sender.EncryptToSelf([]byte(doc))
	if err != nil {
		return fmt.Errorf("%w: mime body: %v", ErrSessionKeyFailedToCreate, err)
	}

	b.mime = &Body{DataPacket: dataPacket, SessionKey: sk}

	slog.Debug("built mime body", "size", len(doc), "attachments", len(b.attachments), "schema", sender.Schema.String())

	return nil
}

// BuildPlainText converts the HTML body to plain text, encrypts and signs
// it with the sender's keys and keeps it as the plain text body.
func (b *RequestBuilder) BuildPlainText(sender pgp.Sender) error {
	text, err := mime.HTMLToPlainText(b.clearBody)
	if err != nil {
		return fmt.Errorf("failed to convert body to plain text: %w", err)
	}

	dataPacket, sk, err := sender.EncryptToSelf([]byte(text))
	if err != nil {
		return fmt.Errorf("%w: plain text body: %v", ErrSessionKeyFailedToCreate, err)
	}

	b.plainText = &Body{DataPacket: dataPacket, SessionKey: sk}

	slog.Debug("built plain text body", "size", len(text), "schema", sender.Schema.String())

	return nil
}

// NeedsMIME reports whether any recipient uses a MIME scheme.
func (b *RequestBuilder) NeedsMIME() bool {
	return xslices.Any(b.recipients, func(r recipient) bool { return resolveScheme(r.prefs).IsMIME() })
}

// NeedsPlainText reports whether any recipient gets the plain text body.
func (b *RequestBuilder) NeedsPlainText() bool {
	return xslices.Any(b.recipients, func(r recipient) bool { return r.prefs.PlainText() })
}

// Draft returns an immutable snapshot of the builder.
func (b *RequestBuilder) Draft() Draft {
	return Draft{
		body:         b.body,
		password:     slices.Clone(b.password),
		hint:         b.hint,
		expiresIn:    b.expiresIn,
		delaySeconds: b.delaySeconds,
		recipients:   slices.Clone(b.recipients),
		attachments:  slices.Clone(b.attachments),
		mime:         b.mime,
		plainText:    b.plainText,
	}
}

func (b *RequestBuilder) attachmentList() []email.Attachment {
	return xslices.Map(b.attachments, func(att PreAttachment) email.Attachment {
		out := att.Attachment
		out.ID = att.ID
		return out
	})
}

// Draft is the frozen input of a send. The MIME and plain text bodies are
// nil unless they were built before freezing.
type Draft struct {
	body Body

	password []byte
	hint     string

	expiresIn    int64
	delaySeconds int64

	recipients  []recipient
	attachments []PreAttachment

	mime      *Body
	plainText *Body
}

// Recipients returns the recipient addresses in insertion order.
func (d Draft) Recipients() []string {
	return xslices.Map(d.recipients, func(r recipient) string { return r.email })
}

// Scheme returns the scheme a recipient resolves to.
func (d Draft) Scheme(address string) (Scheme, bool) {
	idx := xslices.IndexFunc(d.recipients, func(r recipient) bool { return r.email == address })
	if idx < 0 {
		return 0, false
	}

	return resolveScheme(d.recipients[idx].prefs), true
}

// hasScheme reports whether any recipient resolves to one of schemes.
func (d Draft) hasScheme(schemes ...Scheme) bool {
	return xslices.Any(d.recipients, func(r recipient) bool {
		return slices.Contains(schemes, resolveScheme(r.prefs))
	})
}

func (d Draft) hasPlainText() bool {
	return xslices.Any(d.recipients, func(r recipient) bool { return r.prefs.PlainText() })
}

// ClearBodyPackage exposes the HTML body session key. It is nil unless a
// recipient resolves to a clear scheme.
func (d Draft) ClearBodyPackage() (*SessionKeyPackage, error) {
	if !d.hasScheme(SchemeClear, SchemeClearMIME) {
		return nil, nil
	}

	return sessionKeyPackage(d.body.SessionKey)
}

// ClearMIMEBodyPackage exposes the MIME body session key. It is nil unless a
// recipient resolves to SchemeClearMIME.
func (d Draft) ClearMIMEBodyPackage() (*SessionKeyPackage, error) {
	if !d.hasScheme(SchemeClearMIME) {
		return nil, nil
	}

	if d.mime == nil {
		return nil, ErrMIMEDataNotPrepared
	}

	return sessionKeyPackage(d.mime.SessionKey)
}

// ClearPlainBodyPackage exposes the plain text body session key. It is nil
// unless a recipient gets plain text and a recipient resolves to a clear
// scheme.
func (d Draft) ClearPlainBodyPackage() (*SessionKeyPackage, error) {
	if !d.hasPlainText() || !d.hasScheme(SchemeClear, SchemeClearMIME) {
		return nil, nil
	}

	if d.plainText == nil {
		return nil, ErrPlainTextDataNotPrepared
	}

	return sessionKeyPackage(d.plainText.SessionKey)
}

// ClearAttachments exposes the attachment session keys keyed by attachment
// ID. It is nil unless a recipient resolves to a clear scheme and the
// message has attachments.
func (d Draft) ClearAttachments() (map[string]SessionKeyPackage, error) {
	if !d.hasScheme(SchemeClear, SchemeClearMIME) || len(d.attachments) == 0 {
		return nil, nil
	}

	out := make(map[string]SessionKeyPackage, len(d.attachments))

	for _, att := range d.attachments {
		pkg, err := sessionKeyPackage(att.SessionKey)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", att.ID, err)
		}

		out[att.ID] = *pkg
	}

	return out, nil
}

func sessionKeyPackage(sk *crypto.SessionKey) (*SessionKeyPackage, error) {
	key, err := pgp.EncodeSessionKey(sk)
	if err != nil {
		return nil, err
	}

	return &SessionKeyPackage{Key: key, Algorithm: sk.Algo}, nil
}
