// Package mime assembles the MIME documents of an outgoing message: the
// EML uploaded as the MIME body variant and the multipart/related document
// signed and encrypted for PGP/MIME recipients.
package mime

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/ProtonMail/gluon/rfc822"
	"github.com/PuerkitoBio/goquery"
	"github.com/shineum/sealpost/internal/email"
)

const (
	base64LineLength = 64
	boundaryBytes    = 20
	contentIDLength  = 8
	contentIDChars   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// ErrRandomUnavailable is returned when the random source fails. No
	// fixed boundary is ever substituted.
	ErrRandomUnavailable = errors.New("secure random source unavailable")

	// ErrMissingAttachmentBody is returned when an attachment has no body.
	ErrMissingAttachmentBody = errors.New("missing attachment body")
)

// EMLBuilder builds the multipart EML of a message.
type EMLBuilder struct {
	rand   io.Reader
	domain string
}

// NewEMLBuilder returns a builder that generates Content-IDs under domain.
func NewEMLBuilder(domain string) *EMLBuilder {
	return NewEMLBuilderWithRand(domain, rand.Reader)
}

// NewEMLBuilderWithRand returns a builder reading randomness from r.
func NewEMLBuilderWithRand(domain string, r io.Reader) *EMLBuilder {
	return &EMLBuilder{rand: r, domain: domain}
}

type inlinePart struct {
	contentID   string
	contentType string
	filename    string
	data        string
}

// Build returns the EML of clearBody with its attachments. Inline data:
// images are moved into their own parts and the img src is rewritten to
// the matching cid: URI. bodies maps attachment IDs to base64 content.
//
// Layout: multipart/mixed > multipart/alternative > (text/plain,
// multipart/related > (text/html, inline parts, attachment parts)).
func (b *EMLBuilder) Build(clearBody string, attachments []email.Attachment, bodies map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clearBody))
	if err != nil {
		return "", fmt.Errorf("failed to parse body: %w", err)
	}

	inlines, err := b.extractInlineImages(doc)
	if err != nil {
		return "", err
	}

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render body: %w", err)
	}

	text, err := HTMLToPlainText(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert body to text: %w", err)
	}

	var regular []email.Attachment

	for _, att := range attachments {
		if !att.IsInline() {
			regular = append(regular, att)
			continue
		}

		data, ok := bodies[att.ID]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingAttachmentBody, att.ID)
		}

		inlines = append(inlines, inlinePart{
			contentID:   att.BareContentID(),
			contentType: att.ContentType,
			filename:    att.Filename,
			data:        data,
		})
	}

	related, err := b.multipart("related", func(w *rfc822.MultipartWriter) error {
		if err := w.AddPart(htmlPart(html)); err != nil {
			return err
		}

		for _, inline := range inlines {
			if err := w.AddPart(inline.write); err != nil {
				return err
			}
		}

		for _, att := range regular {
			data, ok := bodies[att.ID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrMissingAttachmentBody, att.ID)
			}

			if err := w.AddPart(attachmentPart(att, data)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	alternative, err := b.multipart("alternative", func(w *rfc822.MultipartWriter) error {
		if err := w.AddPart(textPart(text)); err != nil {
			return err
		}

		return w.AddPart(rawPart(related))
	})
	if err != nil {
		return "", err
	}

	return b.multipart("mixed", func(w *rfc822.MultipartWriter) error {
		return w.AddPart(rawPart(alternative))
	})
}

// extractInlineImages rewrites every data: image of doc to a cid: URI and
// returns the parts to embed. Malformed data URIs are left untouched.
func (b *EMLBuilder) extractInlineImages(doc *goquery.Document) ([]inlinePart, error) {
	var (
		inlines []inlinePart
		err     error
	)

	doc.Find(`img[src^="data:"]`).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")

		uri, ok := ParseDataURI(src)
		if !ok {
			return true
		}

		var id string
		if id, err = b.contentID(); err != nil {
			return false
		}

		img.SetAttr("src", "cid:"+id)

		inlines = append(inlines, inlinePart{
			contentID:   id,
			contentType: uri.MIMEType,
			filename:    id,
			data:        uri.Base64(),
		})

		return true
	})

	if err != nil {
		return nil, err
	}

	return inlines, nil
}

// multipart renders a multipart entity with a fresh boundary.
func (b *EMLBuilder) multipart(subtype string, fn func(*rfc822.MultipartWriter) error) (string, error) {
	boundary, err := b.boundary()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Type: multipart/%s;boundary=%s\r\n\r\n", subtype, boundary)

	w := rfc822.NewMultipartWriter(&buf, boundary)

	if err := fn(w); err != nil {
		return "", err
	}

	if err := w.Done(); err != nil {
		return "", err
	}

	return strings.TrimSuffix(buf.String(), "\r\n"), nil
}

func (b *EMLBuilder) boundary() (string, error) {
	raw := make([]byte, boundaryBytes)
	if _, err := io.ReadFull(b.rand, raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
	}

	return hex.EncodeToString(raw), nil
}

func (b *EMLBuilder) contentID() (string, error) {
	raw := make([]byte, contentIDLength)
	if _, err := io.ReadFull(b.rand, raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
	}

	for i := range raw {
		raw[i] = contentIDChars[int(raw[i])%len(contentIDChars)]
	}

	return string(raw) + "@" + b.domain, nil
}

func rawPart(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func textPart(text string) func(io.Writer) error {
	return func(w io.Writer) error {
		if _, err := io.WriteString(w, "Content-Transfer-Encoding: quoted-printable\r\nContent-Type: text/plain;charset=utf-8\r\n\r\n"); err != nil {
			return err
		}

		return writeQuotedPrintable(w, text)
	}
}

func htmlPart(html string) func(io.Writer) error {
	return func(w io.Writer) error {
		if _, err := io.WriteString(w, "Content-Type: text/html;charset=utf-8\r\nContent-Transfer-Encoding: base64\r\n\r\n"); err != nil {
			return err
		}

		_, err := io.WriteString(w, WrapBase64(base64.StdEncoding.EncodeToString([]byte(html)), base64LineLength))
		return err
	}
}

func (p inlinePart) write(w io.Writer) error {
	name := encodeWord(p.filename)

	_, err := fmt.Fprintf(w,
		"Content-Type: %s; filename=\"%s\"; name=\"%s\"\r\n"+
			"Content-Transfer-Encoding: base64\r\n"+
			"Content-Disposition: inline; filename=\"%s\"\r\n"+
			"Content-ID: <%s>\r\n\r\n%s",
		p.contentType, name, name, name, p.contentID, WrapBase64(p.data, base64LineLength))

	return err
}

func attachmentPart(att email.Attachment, data string) func(io.Writer) error {
	return func(w io.Writer) error {
		name := encodeWord(att.Filename)

		_, err := fmt.Fprintf(w,
			"Content-Type: %s; filename=\"%s\"; name=\"%s\"\r\n"+
				"Content-Transfer-Encoding: base64\r\n"+
				"Content-Disposition: attachment; filename=\"%s\"\r\n\r\n%s",
			contentType(att), name, name, name, WrapBase64(data, base64LineLength))

		return err
	}
}

func writeQuotedPrintable(w io.Writer, text string) error {
	qp := quotedprintable.NewWriter(w)

	if _, err := io.WriteString(qp, text); err != nil {
		return err
	}

	return qp.Close()
}

// encodeWord always B-encodes s as an RFC 2047 encoded word.
func encodeWord(s string) string {
	return "=?utf-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
}

func contentType(att email.Attachment) string {
	if att.ContentType == "" {
		return "application/octet-stream"
	}

	return att.ContentType
}
