package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/shineum/sealpost/internal/api"
	"github.com/shineum/sealpost/internal/email"
	"github.com/shineum/sealpost/internal/invite"
	"github.com/shineum/sealpost/internal/keypacket"
	sealmime "github.com/shineum/sealpost/internal/mime"
	"github.com/shineum/sealpost/internal/parser"
	"github.com/shineum/sealpost/internal/rsvp"
	"github.com/shineum/sealpost/internal/send"
	"github.com/shineum/sealpost/internal/srp"
)

// eml prints the EML of an HTML body with its attachments.
func (r *runner) eml(c *cli.Context) error {
	body, err := os.ReadFile(c.Path("body"))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	var (
		attachments []email.Attachment
		bodies      = make(map[string]string)
	)

	for i, path := range c.StringSlice("attach") {
		att, err := readAttachment(fmt.Sprintf("att-%d", i+1), path, "")
		if err != nil {
			return err
		}

		attachments = append(attachments, att)
		bodies[att.ID] = base64.StdEncoding.EncodeToString(att.Content)
	}

	doc, err := sealmime.NewEMLBuilder(r.cfg.Send.ContentIDDomain).Build(string(body), attachments, bodies)
	if err != nil {
		return fmt.Errorf("failed to build eml: %w", err)
	}

	_, err = fmt.Fprint(c.App.Writer, doc)

	return err
}

// pack builds the send request described by a request file and prints it
// as JSON.
func (r *runner) pack(c *cli.Context) error {
	req, err := loadRequest(c.Path("request"))
	if err != nil {
		return err
	}

	sender, err := req.sender(r.cfg.Send.KeySchema)
	if err != nil {
		return err
	}

	builder := send.NewRequestBuilder(sealmime.NewEMLBuilder(r.cfg.Send.ContentIDDomain))
	if err := req.apply(builder, sender, time.Now(), r.cfg.Send.ExpirationOffset); err != nil {
		return err
	}

	var verifier send.PasswordVerifier
	if req.Password != "" {
		verifier = srp.NewRegistrar(api.New(r.cfg.API))
	}

	sendReq, err := builder.Draft().SendRequest(c.Context, verifier, r.cfg.Send.Workers)
	if err != nil {
		if api.IsNetworkError(err) {
			return fmt.Errorf("network failure while building packages: %w", err)
		}
		return fmt.Errorf("failed to build send request: %w", err)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")

	return enc.Encode(sendReq)
}

// reply answers the invitation in an email and notifies the organizer.
// Answering a series also re-sends the answer for the single edits whose
// previous answer it supersedes.
func (r *runner) reply(c *cli.Context) error {
	raw, err := os.ReadFile(c.Path("invitation"))
	if err != nil {
		return fmt.Errorf("failed to read invitation: %w", err)
	}

	answer, err := rsvp.ParseAnswer(c.String("answer"))
	if err != nil {
		return err
	}
	if answer == rsvp.Unanswered {
		return errors.New("answer must be yes, no or maybe")
	}

	inv, err := parser.ParseInvitation(raw)
	if err != nil {
		return err
	}
	if len(inv.Calendar.Events) == 0 {
		return errors.New("invitation has no events")
	}

	var addresses []rsvp.Address
	for i, addr := range c.StringSlice("address") {
		addresses = append(addresses, rsvp.Address{ID: fmt.Sprintf("address-%d", i+1), Email: addr, Order: i + 1, Send: true})
	}

	info := rsvp.CalendarInfo{Type: rsvp.CalendarPersonal, Writable: true}
	validator := rsvp.NewPermissionValidator(addresses)

	target := mainEvent(inv.Calendar.Events)

	validated, ok := validator.CanAnswer(target, info)
	if !ok {
		return fmt.Errorf("event %s cannot be answered from these addresses", target.UID)
	}

	eventType, ok := rsvp.NewEventTypeCalculator(rsvp.NewResetRepository(validator)).
		EventType(rsvp.ClassifyEvent(target, inv.Calendar.Events), answer, info)
	if !ok {
		return fmt.Errorf("event %s cannot be decrypted", target.UID)
	}

	current := validator.CurrentAnswer(target)

	slog.Info("answering invitation",
		"uid", target.UID,
		"kind", eventType.Kind.String(),
		"from", current.String(),
		"to", answer.String(),
		"personal_part", rsvp.PersonalPartActionFor(rsvp.NotificationsStateOf(nil), current, answer).String(),
	)

	if path := c.Path("key-packet"); path != "" {
		kp, err := loadKeyPacketFile(path)
		if err != nil {
			return err
		}

		if err := kp.upload(c.Context, keypacket.NewUploader(api.New(r.cfg.API)), target, r.cfg.Send.KeySchema); err != nil {
			if api.IsNetworkError(err) {
				return fmt.Errorf("network failure while sharing the event key packet: %w", err)
			}
			return err
		}
	}

	prov, err := selectProvider(c.Context, r.cfg)
	if err != nil {
		return err
	}

	notifier := invite.NewOrganizerNotifier(invite.NewICSBuilder(), invite.NewEmailSender(prov, r.cfg.Send.ContentIDDomain))

	if err := notifier.Notify(c.Context, validated, target, answer); err != nil {
		return err
	}

	for _, edit := range eventType.SingleEdits.ToReset {
		if err := notifier.Notify(c.Context, edit.Validated, edit.Event, answer); err != nil {
			return fmt.Errorf("failed to reset single edit %s: %w", edit.Event.UID, err)
		}
	}

	return nil
}

// mainEvent returns the series event of a calendar, or its first event when
// the calendar only holds single edits.
func mainEvent(events []rsvp.Event) rsvp.Event {
	for _, e := range events {
		if !e.IsSingleEdit() {
			return e
		}
	}
	return events[0]
}

func readAttachment(id, path, contentType string) (email.Attachment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return email.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	} else {
		contentType = "application/octet-stream"
	}

	return email.Attachment{
		ID:          id,
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Disposition: email.DispositionAttachment,
		Content:     content,
	}, nil
}
