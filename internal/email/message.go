// Package email defines the message model shared by the MIME builder,
// the send pipeline and the notification providers.
package email

import (
	"mime"
	"strings"
)

// Disposition values for attachments.
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
)

// Email is a fully composed outgoing message, handed to a provider in a
// single call.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	RawHeaders  map[string][]string
	MessageID   string
}

// Attachment is a file attached to a message. ID is the server-side
// attachment identifier; Content is only set when the bytes are local.
type Attachment struct {
	ID          string
	Filename    string
	ContentType string
	// ContentTypeParams are extra parameters appended to Content-Type,
	// such as method=REPLY for calendar parts.
	ContentTypeParams map[string]string
	Disposition       string
	ContentID         string
	Content           []byte
}

// IsInline reports whether the attachment is an already uploaded inline
// part that the HTML body references through its Content-ID.
func (a Attachment) IsInline() bool {
	return strings.EqualFold(a.Disposition, DispositionInline) && a.ContentID != ""
}

// BareContentID returns the Content-ID without surrounding angle brackets.
func (a Attachment) BareContentID() string {
	return strings.TrimSuffix(strings.TrimPrefix(a.ContentID, "<"), ">")
}

// MediaType returns the full Content-Type value, parameters included.
func (a Attachment) MediaType() string {
	t := a.ContentType
	if t == "" {
		t = "application/octet-stream"
	}

	if len(a.ContentTypeParams) == 0 {
		return t
	}

	if v := mime.FormatMediaType(t, a.ContentTypeParams); v != "" {
		return v
	}

	return t
}
