// Package parser reads RFC 5322 messages, and the calendar invitations
// they carry, into the shared email and rsvp models.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/sealpost/internal/email"
)

// Parse parses a raw RFC 5322 email message into an Email struct.
// It handles plain text messages, multipart messages with text/html bodies,
// and attachments. Unrecognized MIME parts are logged as warnings.
func Parse(raw []byte) (*email.Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		if !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		slog.Warn("message uses an unknown charset", "error", err)
	}

	if mediaType, params, err := mr.Header.ContentType(); err == nil &&
		strings.HasPrefix(mediaType, "multipart/") && params["boundary"] == "" {
		return nil, errors.New("multipart message missing boundary")
	}

	result := &email.Email{
		RawHeaders: make(map[string][]string),
		From:       mr.Header.Get("From"),
		MessageID:  mr.Header.Get("Message-Id"),
		To:         parseAddressList(mr.Header.Get("To")),
		Cc:         parseAddressList(mr.Header.Get("Cc")),
		Bcc:        parseAddressList(mr.Header.Get("Bcc")),
	}

	fields := mr.Header.Fields()
	for fields.Next() {
		result.RawHeaders[fields.Key()] = append(result.RawHeaders[fields.Key()], fields.Value())
	}

	if subject, err := mr.Header.Subject(); err == nil {
		result.Subject = subject
	} else {
		result.Subject = mr.Header.Get("Subject")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}

		if err := addPart(result, part); err != nil {
			slog.Warn("failed to read part content", "error", err)
		}
	}

	return result, nil
}

// addPart files one leaf part as a body or an attachment.
func addPart(result *email.Email, part *mail.Part) error {
	h := entityHeader(part.Header)

	mediaType, params, err := h.ContentType()
	if err != nil || mediaType == "" {
		mediaType, params = "text/plain", nil
	}

	disposition, dispParams, _ := h.ContentDisposition()

	content, err := io.ReadAll(part.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", mediaType, err)
	}

	isAttachment := disposition == email.DispositionAttachment

	if !isAttachment {
		switch mediaType {
		case "text/plain":
			if result.TextBody == "" {
				result.TextBody = string(content)
			}
			return nil
		case "text/html":
			if result.HtmlBody == "" {
				result.HtmlBody = string(content)
			}
			return nil
		}
	}

	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	// Calendar parts are often sent inline with neither name nor
	// disposition.
	if filename == "" && !isAttachment && mediaType != "text/calendar" {
		slog.Warn("unrecognized MIME part, skipping", "content_type", mediaType, "disposition", disposition)
		return nil
	}

	if filename == "" {
		filename = fallbackFilename(mediaType)
	}

	delete(params, "name")
	if len(params) == 0 {
		params = nil
	}

	if disposition == "" {
		disposition = email.DispositionAttachment
	}

	result.Attachments = append(result.Attachments, email.Attachment{
		Filename:          filename,
		ContentType:       mediaType,
		ContentTypeParams: params,
		Disposition:       disposition,
		ContentID:         h.Get("Content-Id"),
		Content:           content,
	})

	return nil
}

func entityHeader(h mail.PartHeader) *message.Header {
	switch h := h.(type) {
	case *mail.InlineHeader:
		return &h.Header
	case *mail.AttachmentHeader:
		return &h.Header
	default:
		return &message.Header{}
	}
}

// fallbackFilename names an attachment after its media subtype, since some
// providers require a name.
func fallbackFilename(mediaType string) string {
	if _, subtype, ok := strings.Cut(mediaType, "/"); ok && subtype != "" {
		return "attachment." + subtype
	}
	return "attachment"
}

// parseAddressList splits a comma-separated address list into individual addresses.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
