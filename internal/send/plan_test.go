package send

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/shineum/sealpost/internal/api"
	"github.com/shineum/sealpost/internal/pgp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedBuilder(scheme Scheme, hasKeys, hasPassword bool) (PackageBuilder, error) {
	switch scheme {
	case SchemeInternal:
		if !hasKeys {
			return nil, ErrMissingPublicKey
		}
		return InternalAddressBuilder{}, nil
	case SchemeEncryptedOutside:
		if !hasPassword {
			return nil, ErrMissingOutsidePassword
		}
		return EOAddressBuilder{}, nil
	case SchemeClear:
		return ClearAddressBuilder{}, nil
	case SchemePGPInline:
		if !hasKeys {
			return ClearAddressBuilder{}, nil
		}
		return PGPAddressBuilder{}, nil
	case SchemePGPMIME:
		if !hasKeys {
			return ClearMIMEAddressBuilder{}, nil
		}
		return PGPMIMEAddressBuilder{}, nil
	case SchemeClearMIME:
		return ClearMIMEAddressBuilder{}, nil
	}

	panic(fmt.Sprintf("unhandled scheme %v", scheme))
}

func TestPackageBuilders_Selection(t *testing.T) {
	rcptKR := newKeyRing(t, "rcpt@example.com")

	for _, scheme := range Schemes {
		for _, hasKeys := range []bool{false, true} {
			for _, hasPassword := range []bool{false, true} {
				name := fmt.Sprintf("%v/keys=%v/password=%v", scheme, hasKeys, hasPassword)

				t.Run(name, func(t *testing.T) {
					b, _ := newRequestBuilder(t)

					if hasPassword {
						b.SetPassword([]byte("outside"), "")
					}

					prefs := SendPreferences{Scheme: scheme, MIMEType: MIMETypeHTML}
					if hasKeys {
						prefs.PublicKeys = rcptKR
					}

					b.Add("rcpt@example.com", prefs)

					builders, err := b.Draft().PackageBuilders(&fakeVerifier{})

					want, wantErr := expectedBuilder(scheme, hasKeys, hasPassword)
					if wantErr != nil {
						require.ErrorIs(t, err, wantErr)
						return
					}

					require.NoError(t, err)
					require.Len(t, builders, 1)
					assert.IsType(t, want, builders[0])
					assert.Equal(t, "rcpt@example.com", builders[0].Email())
					assert.Equal(t, want.Scheme(), builders[0].Scheme())
				})
			}
		}
	}
}

func TestPackageBuilders_EmptyKeyRingFallsBack(t *testing.T) {
	b, _ := newRequestBuilder(t)

	empty, err := crypto.NewKeyRing(nil)
	require.NoError(t, err)

	b.Add("a@example.com", SendPreferences{Scheme: SchemePGPInline, PublicKeys: empty})

	builders, err := b.Draft().PackageBuilders(nil)
	require.NoError(t, err)
	assert.IsType(t, ClearAddressBuilder{}, builders[0])
}

func TestPackageBuilders_DataNotPrepared(t *testing.T) {
	rcptKR := newKeyRing(t, "rcpt@example.com")

	t.Run("mime", func(t *testing.T) {
		b, _ := newRequestBuilder(t)
		b.mime = nil
		b.Add("a@example.com", SendPreferences{Scheme: SchemePGPMIME, PublicKeys: rcptKR})

		_, err := b.Draft().PackageBuilders(nil)
		require.ErrorIs(t, err, ErrMIMEDataNotPrepared)
	})

	t.Run("plain text", func(t *testing.T) {
		b, _ := newRequestBuilder(t)
		b.plainText = nil
		b.Add("a@example.com", SendPreferences{Scheme: SchemeInternal, MIMEType: MIMETypePlainText, PublicKeys: rcptKR})

		_, err := b.Draft().PackageBuilders(nil)
		require.ErrorIs(t, err, ErrPlainTextDataNotPrepared)
	})

	t.Run("missing verifier", func(t *testing.T) {
		b, _ := newRequestBuilder(t)
		b.SetPassword([]byte("outside"), "")
		b.Add("a@example.com", SendPreferences{Scheme: SchemeEncryptedOutside})

		_, err := b.Draft().PackageBuilders(nil)
		require.ErrorIs(t, err, ErrMissingVerifier)
	})
}

func TestPackageBuilders_LastWriteWins(t *testing.T) {
	rcptKR := newKeyRing(t, "rcpt@example.com")

	b, _ := newRequestBuilder(t)
	b.Add("a@example.com", SendPreferences{Scheme: SchemeClear})
	b.Add("b@example.com", SendPreferences{Scheme: SchemeClear})
	b.Add("a@example.com", SendPreferences{Scheme: SchemeInternal, PublicKeys: rcptKR})

	draft := b.Draft()
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, draft.Recipients())

	builders, err := draft.PackageBuilders(nil)
	require.NoError(t, err)
	require.Len(t, builders, 2)
	assert.IsType(t, InternalAddressBuilder{}, builders[0])
	assert.IsType(t, ClearAddressBuilder{}, builders[1])
}

func TestBuild_InternalRoundTrip(t *testing.T) {
	rcptKR := newKeyRing(t, "rcpt@pm.me")

	b, _ := newRequestBuilder(t)
	att := newAttachment(t, "att-1")
	b.AddAttachment(att)
	b.Add("rcpt@pm.me", SendPreferences{Encrypt: true, Sign: true, Scheme: SchemeInternal, PublicKeys: rcptKR})

	draft := b.Draft()

	builders, err := draft.PackageBuilders(nil)
	require.NoError(t, err)

	pkgs, err := BuildPackages(context.Background(), builders, 2)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)

	pkg := pkgs[0]
	assert.Equal(t, SchemeInternal, pkg.Type)
	assert.Equal(t, 1, pkg.Signature)
	assert.Nil(t, pkg.OutsidePackage)

	sk, err := pgp.DecryptKeyPacket(pkg.BodyKeyPacket, rcptKR)
	require.NoError(t, err)
	assert.Equal(t, draft.body.SessionKey.Key, sk.Key)

	attSK, err := pgp.DecryptKeyPacket(pkg.AttachmentKeyPackets["att-1"], rcptKR)
	require.NoError(t, err)
	assert.Equal(t, att.SessionKey.Key, attSK.Key)
}

func TestBuild_PlainTextRecipientUsesPlainTextSession(t *testing.T) {
	rcptKR := newKeyRing(t, "rcpt@example.com")

	b, _ := newRequestBuilder(t)
	b.Add("rcpt@example.com", SendPreferences{Scheme: SchemePGPInline, MIMEType: MIMETypePlainText, PublicKeys: rcptKR})

	draft := b.Draft()

	builders, err := draft.PackageBuilders(nil)
	require.NoError(t, err)

	pkgs, err := BuildPackages(context.Background(), builders, 1)
	require.NoError(t, err)
	assert.True(t, pkgs[0].PlainText)

	sk, err := pgp.DecryptKeyPacket(pkgs[0].BodyKeyPacket, rcptKR)
	require.NoError(t, err)
	assert.Equal(t, draft.plainText.SessionKey.Key, sk.Key)
}

func TestBuild_PGPMIMEWrapsMIMESessionOnly(t *testing.T) {
	rcptKR := newKeyRing(t, "rcpt@example.com")

	b, _ := newRequestBuilder(t)
	b.AddAttachment(newAttachment(t, "att-1"))
	b.Add("rcpt@example.com", SendPreferences{Scheme: SchemePGPMIME, PublicKeys: rcptKR})

	draft := b.Draft()

	builders, err := draft.PackageBuilders(nil)
	require.NoError(t, err)

	pkgs, err := BuildPackages(context.Background(), builders, 1)
	require.NoError(t, err)
	assert.Empty(t, pkgs[0].AttachmentKeyPackets)

	sk, err := pgp.DecryptKeyPacket(pkgs[0].BodyKeyPacket, rcptKR)
	require.NoError(t, err)
	assert.Equal(t, draft.mime.SessionKey.Key, sk.Key)
}

func TestBuild_EncryptedOutside(t *testing.T) {
	password := []byte("outside")

	b, _ := newRequestBuilder(t)
	att := newAttachment(t, "att-1")
	b.AddAttachment(att)
	b.SetPassword(password, "the usual")
	b.Add("friend@example.com", SendPreferences{Scheme: SchemeEncryptedOutside})

	draft := b.Draft()
	verifier := &fakeVerifier{}

	builders, err := draft.PackageBuilders(verifier)
	require.NoError(t, err)

	pkgs, err := BuildPackages(context.Background(), builders, 1)
	require.NoError(t, err)

	pkg := pkgs[0]
	require.NotNil(t, pkg.OutsidePackage)
	assert.Equal(t, int32(1), verifier.calls.Load())
	assert.Equal(t, "the usual", pkg.PasswordHint)
	assert.Equal(t, "mod-1", pkg.Auth.ModulusID)

	raw, err := base64.StdEncoding.DecodeString(pkg.Token)
	require.NoError(t, err)
	assert.Len(t, raw, outsideTokenSize)

	encToken, err := crypto.NewPGPMessageFromArmored(pkg.EncToken)
	require.NoError(t, err)

	token, err := crypto.DecryptMessageWithPassword(encToken, password)
	require.NoError(t, err)
	assert.Equal(t, pkg.Token, token.GetString())

	bodyPacket, err := base64.StdEncoding.DecodeString(pkg.BodyKeyPacket)
	require.NoError(t, err)

	sk, err := crypto.DecryptSessionKeyWithPassword(bodyPacket, password)
	require.NoError(t, err)
	assert.Equal(t, draft.body.SessionKey.Key, sk.Key)

	attPacket, err := base64.StdEncoding.DecodeString(pkg.AttachmentKeyPackets["att-1"])
	require.NoError(t, err)

	attSK, err := crypto.DecryptSessionKeyWithPassword(attPacket, password)
	require.NoError(t, err)
	assert.Equal(t, att.SessionKey.Key, attSK.Key)
}

func TestBuild_ClearHasNoKeyPackets(t *testing.T) {
	b, _ := newRequestBuilder(t)
	b.AddAttachment(newAttachment(t, "att-1"))
	b.Add("a@example.com", SendPreferences{Scheme: SchemeClear})
	b.Add("b@example.com", SendPreferences{Scheme: SchemeClearMIME})

	builders, err := b.Draft().PackageBuilders(nil)
	require.NoError(t, err)

	pkgs, err := BuildPackages(context.Background(), builders, 2)
	require.NoError(t, err)

	for _, pkg := range pkgs {
		assert.Empty(t, pkg.BodyKeyPacket)
		assert.Empty(t, pkg.AttachmentKeyPackets)
		assert.Nil(t, pkg.OutsidePackage)
	}
}

func TestBuildPackages_FailureFailsBatch(t *testing.T) {
	b, _ := newRequestBuilder(t)
	b.SetPassword([]byte("outside"), "")
	b.Add("a@example.com", SendPreferences{Scheme: SchemeClear})
	b.Add("b@example.com", SendPreferences{Scheme: SchemeEncryptedOutside})
	b.Add("c@example.com", SendPreferences{Scheme: SchemeClear})

	networkErr := &api.RequestError{Op: "get modulus", StatusCode: 503, Err: errors.New("unavailable")}

	builders, err := b.Draft().PackageBuilders(&fakeVerifier{err: networkErr})
	require.NoError(t, err)

	pkgs, err := BuildPackages(context.Background(), builders, 3)
	require.Error(t, err)
	assert.Nil(t, pkgs)
	assert.ErrorIs(t, err, ErrPackagesFailedToCreate)
	assert.True(t, api.IsNetworkError(err))

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "b@example.com", buildErr.Email)
	assert.Equal(t, SchemeEncryptedOutside, buildErr.Scheme)
}

func TestBuildPackages_PreservesOrder(t *testing.T) {
	b, _ := newRequestBuilder(t)

	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for _, addr := range emails {
		b.Add(addr, SendPreferences{Scheme: SchemeClear})
	}

	builders, err := b.Draft().PackageBuilders(nil)
	require.NoError(t, err)

	pkgs, err := BuildPackages(context.Background(), builders, 0)
	require.NoError(t, err)

	for i, pkg := range pkgs {
		assert.Equal(t, emails[i], pkg.Email)
	}
}

func TestBuild_StopsWhenCancelled(t *testing.T) {
	rcptKR := newKeyRing(t, "rcpt@example.com")

	b, _ := newRequestBuilder(t)
	b.SetPassword([]byte("outside"), "")
	b.Add("internal@pm.me", SendPreferences{Scheme: SchemeInternal, PublicKeys: rcptKR})
	b.Add("pgp@example.com", SendPreferences{Scheme: SchemePGPInline, PublicKeys: rcptKR})
	b.Add("outside@example.com", SendPreferences{Scheme: SchemeEncryptedOutside})
	b.Add("clear@example.com", SendPreferences{Scheme: SchemeClear})

	verifier := &fakeVerifier{}

	builders, err := b.Draft().PackageBuilders(verifier)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, builder := range builders {
		_, err := builder.Build(ctx)
		assert.ErrorIs(t, err, context.Canceled, builder.Email())
	}

	assert.Zero(t, verifier.calls.Load())

	pkgs, err := BuildPackages(ctx, builders, 2)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pkgs)
}
