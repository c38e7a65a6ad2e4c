// Package stdout implements a Provider that prints emails to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/sealpost/internal/email"
)

// Provider prints email messages in a human-readable summary, or as the
// full MIME document when raw output is enabled.
type Provider struct {
	writer io.Writer
	raw    bool
}

// New creates a new stdout Provider that writes to os.Stdout.
func New(raw bool) *Provider {
	return &Provider{writer: os.Stdout, raw: raw}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
func NewWithWriter(w io.Writer, raw bool) *Provider {
	return &Provider{writer: w, raw: raw}
}

// Send prints msg. Calendar attachments are printed in full since they
// carry the content of a reply.
func (p *Provider) Send(_ context.Context, msg *email.Email) error {
	if p.raw {
		data, err := msg.Raw()
		if err != nil {
			return fmt.Errorf("failed to render message: %w", err)
		}

		if _, err := p.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}

		return nil
	}

	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))

	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)

	if msg.MessageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\n", msg.MessageID)
	}

	b.WriteString("Body:\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HtmlBody
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s, %s)", att.Filename, att.MediaType(), formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))

		for _, att := range msg.Attachments {
			if strings.EqualFold(att.ContentType, "text/calendar") {
				fmt.Fprintf(&b, "--- %s ---\n%s", att.Filename, strings.ReplaceAll(string(att.Content), "\r\n", "\n"))
			}
		}
	}

	b.WriteString("========================================\n")

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
