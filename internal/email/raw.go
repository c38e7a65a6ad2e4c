package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Raw renders the message as an RFC 5322 document: a multipart/mixed body
// holding the text alternatives followed by the attachments. Bcc is never
// written.
func (e *Email) Raw() ([]byte, error) {
	var buf bytes.Buffer

	if err := e.writeMIME(&buf, time.Now()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (e *Email) writeMIME(w io.Writer, date time.Time) error {
	var h mail.Header

	h.SetDate(date)
	h.SetSubject(e.Subject)

	if err := setAddressList(&h, "From", []string{e.From}); err != nil {
		return err
	}

	if err := setAddressList(&h, "To", e.To); err != nil {
		return err
	}

	if err := setAddressList(&h, "Cc", e.Cc); err != nil {
		return err
	}

	if e.MessageID != "" {
		h.SetMessageID(strings.Trim(e.MessageID, "<>"))
	}

	for key, values := range e.RawHeaders {
		for _, value := range values {
			h.Add(key, value)
		}
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}

	if err := e.writeBodies(mw); err != nil {
		return err
	}

	for _, att := range e.Attachments {
		if err := writeAttachment(mw, att); err != nil {
			return fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
		}
	}

	return mw.Close()
}

func (e *Email) writeBodies(mw *mail.Writer) error {
	if e.TextBody == "" && e.HtmlBody == "" {
		return nil
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}

	if e.TextBody != "" {
		if err := writeInline(iw, "text/plain", e.TextBody); err != nil {
			return err
		}
	}

	if e.HtmlBody != "" {
		if err := writeInline(iw, "text/html", e.HtmlBody); err != nil {
			return err
		}
	}

	return iw.Close()
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader

	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := iw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}

	if _, err := io.WriteString(pw, body); err != nil {
		return err
	}

	return pw.Close()
}

func writeAttachment(mw *mail.Writer, att Attachment) error {
	var h mail.AttachmentHeader

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h.SetContentType(contentType, att.ContentTypeParams)
	h.SetFilename(att.Filename)
	h.Set("Content-Transfer-Encoding", "base64")

	if att.ContentID != "" {
		h.Set("Content-ID", "<"+att.BareContentID()+">")
	}

	aw, err := mw.CreateAttachment(h)
	if err != nil {
		return err
	}

	if _, err := aw.Write(att.Content); err != nil {
		return err
	}

	return aw.Close()
}

func setAddressList(h *mail.Header, key string, values []string) error {
	var list []*mail.Address

	for _, value := range values {
		if value == "" {
			continue
		}

		addr, err := mail.ParseAddress(value)
		if err != nil {
			return fmt.Errorf("invalid %s address %q: %w", key, value, err)
		}

		list = append(list, addr)
	}

	if len(list) > 0 {
		h.SetAddressList(key, list)
	}

	return nil
}
