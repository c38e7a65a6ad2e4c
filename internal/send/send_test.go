package send

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/shineum/sealpost/internal/mime"
	"github.com/shineum/sealpost/internal/pgp"
	"github.com/shineum/sealpost/internal/srp"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	calls atomic.Int32
	err   error
}

func (v *fakeVerifier) Register(_ context.Context, _ []byte) (srp.PasswordAuth, error) {
	v.calls.Add(1)

	if v.err != nil {
		return srp.PasswordAuth{}, v.err
	}

	return srp.PasswordAuth{ModulusID: "mod-1", Version: 4, Salt: "c2FsdA==", Verifier: "dmVyaWZpZXI="}, nil
}

func newKeyRing(t *testing.T, email string) *crypto.KeyRing {
	t.Helper()

	key, err := crypto.GenerateKey("test", email, "x25519", 0)
	require.NoError(t, err)

	kr, err := crypto.NewKeyRing(key)
	require.NoError(t, err)

	return kr
}

func newSender(t *testing.T) (pgp.Sender, *crypto.KeyRing) {
	t.Helper()

	passphrase := []byte("mailbox")

	key, err := crypto.GenerateKey("sender", "sender@pm.me", "x25519", 0)
	require.NoError(t, err)

	kr, err := crypto.NewKeyRing(key)
	require.NoError(t, err)

	locked, err := key.Lock(passphrase)
	require.NoError(t, err)

	armored, err := locked.Armor()
	require.NoError(t, err)

	return pgp.Sender{
		Schema:      pgp.SchemaLegacy,
		Passphrase:  passphrase,
		AddressKeys: []pgp.AddressKey{{ID: "k1", PrivateKey: armored, Primary: true}},
	}, kr
}

// encryptBody encrypts plain to kr and returns the body variant.
func encryptBody(t *testing.T, plain string, kr *crypto.KeyRing) Body {
	t.Helper()

	split, err := pgp.EncryptAndSplit([]byte(plain), kr, kr)
	require.NoError(t, err)

	sk, err := kr.DecryptSessionKey(split.GetBinaryKeyPacket())
	require.NoError(t, err)

	return Body{DataPacket: split.GetBinaryDataPacket(), SessionKey: sk}
}

func newAttachment(t *testing.T, id string) PreAttachment {
	t.Helper()

	sk, err := pgp.GenerateSessionKey(pgp.DefaultAlgorithm)
	require.NoError(t, err)

	att := PreAttachment{ID: id, SessionKey: sk}
	att.Attachment.Filename = id + ".txt"
	att.Attachment.ContentType = "text/plain"

	return att
}

// newRequestBuilder returns a builder with every body variant prepared.
func newRequestBuilder(t *testing.T) (*RequestBuilder, *crypto.KeyRing) {
	t.Helper()

	kr := newKeyRing(t, "sender@pm.me")

	b := NewRequestBuilder(mime.NewEMLBuilder("pm.me"))
	b.SetClearBody("<p>hello</p>")
	b.UpdateBody(encryptBody(t, "<p>hello</p>", kr))

	mimeBody := encryptBody(t, "mime", kr)
	plainBody := encryptBody(t, "hello\r\n", kr)

	b.mime = &mimeBody
	b.plainText = &plainBody

	return b, kr
}
