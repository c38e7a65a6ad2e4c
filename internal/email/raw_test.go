package email

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
)

func TestMediaType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		att  Attachment
		want string
	}{
		{name: "empty defaults to octet-stream", att: Attachment{}, want: "application/octet-stream"},
		{name: "no params", att: Attachment{ContentType: "application/pdf"}, want: "application/pdf"},
		{
			name: "params are sorted",
			att:  Attachment{ContentType: "text/calendar", ContentTypeParams: map[string]string{"method": "REPLY", "charset": "utf-8"}},
			want: "text/calendar; charset=utf-8; method=REPLY",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.att.MediaType(); got != tt.want {
				t.Errorf("MediaType: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteMIME(t *testing.T) {
	t.Parallel()

	msg := &Email{
		From:      "Me <me@pm.me>",
		To:        []string{"boss@example.com"},
		Cc:        []string{"team@example.com"},
		Bcc:       []string{"hidden@example.com"},
		Subject:   "Accepted: Planning",
		TextBody:  "See you there",
		MessageID: "<abc@pm.me>",
		Attachments: []Attachment{{
			Filename:          "invite.ics",
			ContentType:       "text/calendar",
			ContentTypeParams: map[string]string{"method": "REPLY"},
			Content:           []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"),
		}},
	}

	var buf bytes.Buffer
	if err := msg.writeMIME(&buf, time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(buf.String(), "hidden@example.com") {
		t.Error("Bcc address leaked into the message")
	}

	mr, err := mail.CreateReader(&buf)
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	if subject, _ := mr.Header.Subject(); subject != msg.Subject {
		t.Errorf("Subject: got %q, want %q", subject, msg.Subject)
	}
	if id, _ := mr.Header.MessageID(); id != "abc@pm.me" {
		t.Errorf("Message-ID: got %q, want %q", id, "abc@pm.me")
	}
	if date, _ := mr.Header.Date(); !date.Equal(time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("Date: got %v", date)
	}

	var text, calendar string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read part: %v", err)
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			t.Fatalf("failed to read part body: %v", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			text = string(body)
		case *mail.AttachmentHeader:
			if name, _ := h.Filename(); name != "invite.ics" {
				t.Errorf("Filename: got %q, want %q", name, "invite.ics")
			}
			calendar = string(body)
		}
	}

	if text != "See you there" {
		t.Errorf("TextBody: got %q, want %q", text, "See you there")
	}
	if calendar != "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n" {
		t.Errorf("calendar: got %q", calendar)
	}
}

func TestRaw_InvalidAddress(t *testing.T) {
	t.Parallel()

	msg := &Email{From: "me@pm.me", To: []string{"not an address"}, TextBody: "x"}

	if _, err := msg.Raw(); err == nil {
		t.Error("expected error for an invalid recipient, got nil")
	}
}
