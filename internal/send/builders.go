package send

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/shineum/sealpost/internal/pgp"
)

const outsideTokenSize = 32

// PackageBuilder builds the package of one recipient. The set of
// implementations is closed: InternalAddressBuilder, PGPAddressBuilder,
// PGPMIMEAddressBuilder, EOAddressBuilder, ClearAddressBuilder and
// ClearMIMEAddressBuilder. Builders hold only read-only inputs and are safe
// to run concurrently.
type PackageBuilder interface {
	Email() string
	Scheme() Scheme
	Build(ctx context.Context) (AddressPackage, error)

	packageBuilder()
}

type address struct {
	email string
	prefs SendPreferences
}

func (a address) Email() string { return a.email }

func (a address) newPackage(scheme Scheme) AddressPackage {
	pkg := AddressPackage{
		Email:     a.email,
		PlainText: a.prefs.PlainText(),
		Type:      scheme,
	}

	if a.prefs.Sign {
		pkg.Signature = 1
	}

	return pkg
}

// InternalAddressBuilder wraps the body and attachment session keys for a
// recipient inside the service.
type InternalAddressBuilder struct {
	address
	session     *crypto.SessionKey
	attachments []PreAttachment
}

func (InternalAddressBuilder) Scheme() Scheme { return SchemeInternal }
func (InternalAddressBuilder) packageBuilder() {}

func (b InternalAddressBuilder) Build(ctx context.Context) (AddressPackage, error) {
	return buildForKeys(ctx, b.address, SchemeInternal, b.session, b.attachments)
}

// PGPAddressBuilder wraps the body and attachment session keys for an
// external recipient with PGP keys, using PGP/Inline.
type PGPAddressBuilder struct {
	address
	session     *crypto.SessionKey
	attachments []PreAttachment
}

func (PGPAddressBuilder) Scheme() Scheme { return SchemePGPInline }
func (PGPAddressBuilder) packageBuilder() {}

func (b PGPAddressBuilder) Build(ctx context.Context) (AddressPackage, error) {
	return buildForKeys(ctx, b.address, SchemePGPInline, b.session, b.attachments)
}

// PGPMIMEAddressBuilder wraps the MIME body session key for an external
// recipient with PGP keys. Attachments travel inside the MIME body.
type PGPMIMEAddressBuilder struct {
	address
	session *crypto.SessionKey
}

func (PGPMIMEAddressBuilder) Scheme() Scheme { return SchemePGPMIME }
func (PGPMIMEAddressBuilder) packageBuilder() {}

func (b PGPMIMEAddressBuilder) Build(ctx context.Context) (AddressPackage, error) {
	return buildForKeys(ctx, b.address, SchemePGPMIME, b.session, nil)
}

// EOAddressBuilder wraps the session keys with the outside password and
// registers the password verifier for the recipient.
type EOAddressBuilder struct {
	address
	session     *crypto.SessionKey
	attachments []PreAttachment
	password    []byte
	hint        string
	verifier    PasswordVerifier
}

func (EOAddressBuilder) Scheme() Scheme { return SchemeEncryptedOutside }
func (EOAddressBuilder) packageBuilder() {}

func (b EOAddressBuilder) Build(ctx context.Context) (AddressPackage, error) {
	if err := ctx.Err(); err != nil {
		return AddressPackage{}, err
	}

	pkg := b.newPackage(SchemeEncryptedOutside)

	bodyKeyPacket, err := pgp.EncryptKeyPacketWithPassword(b.session, b.password)
	if err != nil {
		return AddressPackage{}, fmt.Errorf("failed to wrap body key: %w", err)
	}
	pkg.BodyKeyPacket = bodyKeyPacket

	if pkg.AttachmentKeyPackets, err = wrapAttachments(ctx, b.attachments, func(sk *crypto.SessionKey) (string, error) {
		return pgp.EncryptKeyPacketWithPassword(sk, b.password)
	}); err != nil {
		return AddressPackage{}, err
	}

	raw, err := crypto.RandomToken(outsideTokenSize)
	if err != nil {
		return AddressPackage{}, fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.StdEncoding.EncodeToString(raw)

	encrypted, err := crypto.EncryptMessageWithPassword(crypto.NewPlainMessageFromString(token), b.password)
	if err != nil {
		return AddressPackage{}, fmt.Errorf("failed to encrypt token: %w", err)
	}

	encToken, err := encrypted.GetArmored()
	if err != nil {
		return AddressPackage{}, fmt.Errorf("failed to armor token: %w", err)
	}

	auth, err := b.verifier.Register(ctx, b.password)
	if err != nil {
		return AddressPackage{}, err
	}

	pkg.OutsidePackage = &OutsidePackage{
		Token:        token,
		EncToken:     encToken,
		Auth:         auth,
		PasswordHint: b.hint,
	}

	return pkg, nil
}

// ClearAddressBuilder produces a package without key packets; the server
// delivers the body in clear using ClearBodyPackage.
type ClearAddressBuilder struct {
	address
}

func (ClearAddressBuilder) Scheme() Scheme { return SchemeClear }
func (ClearAddressBuilder) packageBuilder() {}

func (b ClearAddressBuilder) Build(ctx context.Context) (AddressPackage, error) {
	if err := ctx.Err(); err != nil {
		return AddressPackage{}, err
	}

	return b.newPackage(SchemeClear), nil
}

// ClearMIMEAddressBuilder produces a package without key packets for the
// MIME body; the server uses ClearMIMEBodyPackage.
type ClearMIMEAddressBuilder struct {
	address
}

func (ClearMIMEAddressBuilder) Scheme() Scheme { return SchemeClearMIME }
func (ClearMIMEAddressBuilder) packageBuilder() {}

func (b ClearMIMEAddressBuilder) Build(ctx context.Context) (AddressPackage, error) {
	if err := ctx.Err(); err != nil {
		return AddressPackage{}, err
	}

	return b.newPackage(SchemeClearMIME), nil
}

func buildForKeys(ctx context.Context, a address, scheme Scheme, session *crypto.SessionKey, attachments []PreAttachment) (AddressPackage, error) {
	if err := ctx.Err(); err != nil {
		return AddressPackage{}, err
	}

	if !a.prefs.HasPublicKeys() {
		return AddressPackage{}, ErrMissingPublicKey
	}

	pkg := a.newPackage(scheme)

	bodyKeyPacket, err := pgp.EncryptKeyPacket(session, a.prefs.PublicKeys)
	if err != nil {
		return AddressPackage{}, fmt.Errorf("failed to wrap body key: %w", err)
	}
	pkg.BodyKeyPacket = bodyKeyPacket

	if pkg.AttachmentKeyPackets, err = wrapAttachments(ctx, attachments, func(sk *crypto.SessionKey) (string, error) {
		return pgp.EncryptKeyPacket(sk, a.prefs.PublicKeys)
	}); err != nil {
		return AddressPackage{}, err
	}

	return pkg, nil
}

func wrapAttachments(ctx context.Context, attachments []PreAttachment, wrap func(*crypto.SessionKey) (string, error)) (map[string]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(attachments))

	for _, att := range attachments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		packet, err := wrap(att.SessionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap key of attachment %s: %w", att.ID, err)
		}

		out[att.ID] = packet
	}

	return out, nil
}
