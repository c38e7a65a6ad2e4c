package mime

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ProtonMail/gluon/rfc822"
	"github.com/shineum/sealpost/internal/email"
)

// BuildRelated returns the multipart/related document that is signed and
// encrypted as the PGP/MIME body: the quoted-printable HTML body followed
// by every attachment in base64 with its Content-ID.
func (b *EMLBuilder) BuildRelated(clearBody string, attachments []email.Attachment, bodies map[string]string) (string, error) {
	boundary, err := b.boundary()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Type: multipart/related; boundary=\"%s\"\r\n\r\n", boundary)

	w := rfc822.NewMultipartWriter(&buf, boundary)

	if err := w.AddPart(func(w io.Writer) error {
		if _, err := io.WriteString(w, "Content-Type: text/html; charset=utf-8\r\n"+
			"Content-Transfer-Encoding: quoted-printable\r\n"+
			"Content-Language: en-US\r\n\r\n"); err != nil {
			return err
		}

		return writeQuotedPrintable(w, clearBody)
	}); err != nil {
		return "", err
	}

	for _, att := range attachments {
		data, ok := bodies[att.ID]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingAttachmentBody, att.ID)
		}

		if err := w.AddPart(relatedAttachmentPart(att, data)); err != nil {
			return "", err
		}
	}

	if err := w.Done(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func relatedAttachmentPart(att email.Attachment, data string) func(io.Writer) error {
	return func(w io.Writer) error {
		name := encodeWord(att.Filename)

		disposition := email.DispositionAttachment
		if att.IsInline() {
			disposition = email.DispositionInline
		}

		if _, err := fmt.Fprintf(w,
			"Content-Type: %s; name=\"%s\"\r\n"+
				"Content-Transfer-Encoding: base64\r\n"+
				"Content-Disposition: %s; filename=\"%s\"\r\n",
			contentType(att), name, disposition, name); err != nil {
			return err
		}

		if att.ContentID != "" {
			if _, err := fmt.Fprintf(w, "Content-ID: <%s>\r\n", att.BareContentID()); err != nil {
				return err
			}
		}

		_, err := fmt.Fprintf(w, "\r\n%s", WrapBase64(data, base64LineLength))
		return err
	}
}
