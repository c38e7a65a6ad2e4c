package send

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/bradenaw/juniper/parallel"
)

// resolveScheme applies the silent fallback of PGP schemes without
// recipient keys to their clear counterparts.
func resolveScheme(prefs SendPreferences) Scheme {
	switch prefs.Scheme {
	case SchemePGPInline:
		if !prefs.HasPublicKeys() {
			return SchemeClear
		}

	case SchemePGPMIME:
		if !prefs.HasPublicKeys() {
			return SchemeClearMIME
		}
	}

	return prefs.Scheme
}

// PackageBuilders selects one builder per recipient, in insertion order.
// verifier is only needed when a recipient is outside the service and may
// be nil otherwise.
func (d Draft) PackageBuilders(verifier PasswordVerifier) ([]PackageBuilder, error) {
	builders := make([]PackageBuilder, 0, len(d.recipients))

	for _, r := range d.recipients {
		builder, err := d.packageBuilder(r, verifier)
		if err != nil {
			return nil, fmt.Errorf("recipient %s: %w", r.email, err)
		}

		builders = append(builders, builder)
	}

	return builders, nil
}

func (d Draft) packageBuilder(r recipient, verifier PasswordVerifier) (PackageBuilder, error) {
	addr := address{email: r.email, prefs: r.prefs}

	switch scheme := resolveScheme(r.prefs); scheme {
	case SchemeInternal:
		session, err := d.session(r.prefs)
		if err != nil {
			return nil, err
		}

		if !r.prefs.HasPublicKeys() {
			return nil, ErrMissingPublicKey
		}

		return InternalAddressBuilder{address: addr, session: session, attachments: d.attachments}, nil

	case SchemeEncryptedOutside:
		session, err := d.session(r.prefs)
		if err != nil {
			return nil, err
		}

		if len(d.password) == 0 {
			return nil, ErrMissingOutsidePassword
		}

		if verifier == nil {
			return nil, ErrMissingVerifier
		}

		return EOAddressBuilder{
			address:     addr,
			session:     session,
			attachments: d.attachments,
			password:    d.password,
			hint:        d.hint,
			verifier:    verifier,
		}, nil

	case SchemeClear:
		return ClearAddressBuilder{address: addr}, nil

	case SchemePGPInline:
		session, err := d.session(r.prefs)
		if err != nil {
			return nil, err
		}

		return PGPAddressBuilder{address: addr, session: session, attachments: d.attachments}, nil

	case SchemePGPMIME:
		if d.mime == nil {
			return nil, ErrMIMEDataNotPrepared
		}

		return PGPMIMEAddressBuilder{address: addr, session: d.mime.SessionKey}, nil

	case SchemeClearMIME:
		return ClearMIMEAddressBuilder{address: addr}, nil

	default:
		return nil, fmt.Errorf("unknown scheme %v", scheme)
	}
}

// session returns the session key of the body variant the recipient reads.
func (d Draft) session(prefs SendPreferences) (*crypto.SessionKey, error) {
	if prefs.PlainText() {
		if d.plainText == nil {
			return nil, ErrPlainTextDataNotPrepared
		}

		return d.plainText.SessionKey, nil
	}

	if d.body.SessionKey == nil {
		return nil, ErrSessionKeyFailedToCreate
	}

	return d.body.SessionKey, nil
}

// BuildPackages runs the builders concurrently with at most workers in
// flight and returns the packages in builder order. The first failure
// cancels the remaining builds and fails the whole batch.
func BuildPackages(ctx context.Context, builders []PackageBuilder, workers int) ([]AddressPackage, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	pkgs, err := parallel.MapContext(ctx, workers, builders, func(ctx context.Context, b PackageBuilder) (AddressPackage, error) {
		pkg, err := b.Build(ctx)
		if err != nil {
			return AddressPackage{}, &BuildError{Email: b.Email(), Scheme: b.Scheme(), Err: err}
		}

		slog.Debug("built package", "scheme", b.Scheme().String(), "key_packets", len(pkg.AttachmentKeyPackets))

		return pkg, nil
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return pkgs, nil
}

// BuildError reports the recipient whose package failed to build. It
// matches ErrPackagesFailedToCreate and unwraps to the cause.
type BuildError struct {
	Email  string
	Scheme Scheme
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%v: %s (%v): %v", ErrPackagesFailedToCreate, e.Email, e.Scheme, e.Err)
}

func (e *BuildError) Unwrap() []error {
	return []error{ErrPackagesFailedToCreate, e.Err}
}
