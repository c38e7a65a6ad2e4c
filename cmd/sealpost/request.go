package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"gopkg.in/yaml.v3"

	"github.com/shineum/sealpost/internal/email"
	"github.com/shineum/sealpost/internal/pgp"
	"github.com/shineum/sealpost/internal/send"
)

// requestFile describes a message to package: the sender's keys, the HTML
// body, the recipients and the attachments. Relative paths are resolved
// against the directory of the file.
type requestFile struct {
	Sender         senderFile       `yaml:"sender"`
	Body           string           `yaml:"body"`
	BodyFile       string           `yaml:"body_file"`
	Password       string           `yaml:"password"`
	PasswordHint   string           `yaml:"password_hint"`
	ExpirationTime int64            `yaml:"expiration_time"`
	DelaySeconds   int64            `yaml:"delay_seconds"`
	Recipients     []recipientFile  `yaml:"recipients"`
	Attachments    []attachmentFile `yaml:"attachments"`

	dir string
}

type senderFile struct {
	Schema      string           `yaml:"schema"`
	Passphrase  string           `yaml:"passphrase"`
	UserKeys    []string         `yaml:"user_keys"`
	AddressKeys []addressKeyFile `yaml:"address_keys"`
}

type addressKeyFile struct {
	ID         string `yaml:"id"`
	PrivateKey string `yaml:"private_key"`
	Token      string `yaml:"token"`
	Primary    bool   `yaml:"primary"`
}

type recipientFile struct {
	Email     string `yaml:"email"`
	Scheme    string `yaml:"scheme"`
	MIMEType  string `yaml:"mime_type"`
	Sign      bool   `yaml:"sign"`
	PublicKey string `yaml:"public_key"`
}

type attachmentFile struct {
	ID          string `yaml:"id"`
	Path        string `yaml:"path"`
	ContentType string `yaml:"content_type"`
	ContentID   string `yaml:"content_id"`
	Inline      bool   `yaml:"inline"`
}

// loadRequest reads and validates a request file.
func loadRequest(path string) (*requestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	req := &requestFile{dir: filepath.Dir(path)}
	if err := yaml.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("failed to parse request file: %w", err)
	}

	if req.BodyFile != "" {
		body, err := os.ReadFile(req.resolve(req.BodyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		req.Body = string(body)
	}

	if len(req.Recipients) == 0 {
		return nil, errors.New("request has no recipients")
	}

	return req, nil
}

func (r *requestFile) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.dir, path)
}

// sender returns the sender key material. defaultSchema applies when the
// file does not name a schema.
func (r *requestFile) sender(defaultSchema string) (pgp.Sender, error) {
	name := r.Sender.Schema
	if name == "" {
		name = defaultSchema
	}

	schema, err := pgp.ParseSchema(name)
	if err != nil {
		return pgp.Sender{}, err
	}

	sender := pgp.Sender{
		Schema:     schema,
		Passphrase: []byte(r.Sender.Passphrase),
		UserKeys:   r.Sender.UserKeys,
	}

	for i, key := range r.Sender.AddressKeys {
		id := key.ID
		if id == "" {
			id = fmt.Sprintf("key-%d", i+1)
		}

		sender.AddressKeys = append(sender.AddressKeys, pgp.AddressKey{
			ID:         id,
			PrivateKey: key.PrivateKey,
			Token:      key.Token,
			Primary:    key.Primary,
		})
	}

	return sender, nil
}

// apply feeds the request into builder and prepares the body variants its
// recipients need. offset is added to the remaining lifetime computed from
// now.
func (r *requestFile) apply(builder *send.RequestBuilder, sender pgp.Sender, now time.Time, offset int64) error {
	dataPacket, sk, err := sender.EncryptToSelf([]byte(r.Body))
	if err != nil {
		return fmt.Errorf("failed to encrypt body: %w", err)
	}

	builder.UpdateBody(send.Body{DataPacket: dataPacket, SessionKey: sk})
	builder.SetClearBody(r.Body)
	builder.SetDelay(r.DelaySeconds)

	if r.ExpirationTime > 0 {
		builder.SetExpiration(r.ExpirationTime - now.Unix() + offset)
	}

	if r.Password != "" {
		builder.SetPassword([]byte(r.Password), r.PasswordHint)
	}

	for _, rcpt := range r.Recipients {
		prefs, err := rcpt.preferences()
		if err != nil {
			return fmt.Errorf("recipient %s: %w", rcpt.Email, err)
		}
		builder.Add(rcpt.Email, prefs)
	}

	bodies := make(map[string]string)

	for i, a := range r.Attachments {
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("att-%d", i+1)
		}

		att, err := readAttachment(id, r.resolve(a.Path), a.ContentType)
		if err != nil {
			return err
		}

		if a.Inline {
			att.Disposition = email.DispositionInline
			att.ContentID = a.ContentID
		}

		attSK, err := pgp.GenerateSessionKey(pgp.DefaultAlgorithm)
		if err != nil {
			return fmt.Errorf("failed to generate attachment session key: %w", err)
		}

		builder.AddAttachment(send.PreAttachment{ID: id, SessionKey: attSK, Attachment: att})
		bodies[id] = base64.StdEncoding.EncodeToString(att.Content)
	}

	if builder.NeedsMIME() {
		if err := builder.BuildMIME(sender, bodies); err != nil {
			return err
		}
	}

	if builder.NeedsPlainText() {
		if err := builder.BuildPlainText(sender); err != nil {
			return err
		}
	}

	return nil
}

func (r recipientFile) preferences() (send.SendPreferences, error) {
	scheme, err := send.ParseScheme(r.Scheme)
	if err != nil {
		return send.SendPreferences{}, err
	}

	prefs := send.SendPreferences{
		Encrypt:  !scheme.IsClear(),
		Sign:     r.Sign,
		Scheme:   scheme,
		MIMEType: send.MIMETypeHTML,
	}

	switch send.MIMEType(r.MIMEType) {
	case "", send.MIMETypeHTML:
	case send.MIMETypePlainText:
		prefs.MIMEType = send.MIMETypePlainText
	case send.MIMETypeMIME:
		prefs.MIMEType = send.MIMETypeMIME
	default:
		return send.SendPreferences{}, fmt.Errorf("unknown mime type %q", r.MIMEType)
	}

	if r.PublicKey == "" {
		return prefs, nil
	}

	key, err := crypto.NewKeyFromArmored(r.PublicKey)
	if err != nil {
		return send.SendPreferences{}, fmt.Errorf("failed to read public key: %w", err)
	}

	if prefs.PublicKeys, err = crypto.NewKeyRing(key); err != nil {
		return send.SendPreferences{}, fmt.Errorf("failed to build key ring: %w", err)
	}

	return prefs, nil
}
