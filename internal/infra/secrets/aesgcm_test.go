package secrets

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cloudguard-sec/internal/domain/accounts"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/faults"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return r
}

func TestNewResolverRejectsWrongKeySize(t *testing.T) {
	_, err := NewResolver([]byte("too-short"))
	require.Error(t, err)
	assert.Equal(t, faults.KindConfiguration, faults.KindOf(err))
}

func TestDecryptRoundTrip(t *testing.T) {
	r := testResolver(t)

	nonce := bytes.Repeat([]byte{0x01}, 12)
	ciphertext, err := r.Encrypt(map[string]string{
		"access_key_id":     "AKIA123",
		"secret_access_key": "s3cret",
	}, nonce)
	require.NoError(t, err)

	creds, err := r.Decrypt(context.Background(), &accounts.CloudAccount{
		ID:                  "acct-1",
		Provider:            "aws",
		EncryptedCredential: ciphertext,
	})
	require.NoError(t, err)
	assert.Equal(t, "aws", creds.Provider)
	assert.Equal(t, "AKIA123", creds.Fields["access_key_id"])
	assert.Equal(t, "s3cret", creds.Fields["secret_access_key"])
}

func TestDecryptFailuresAreTyped(t *testing.T) {
	r := testResolver(t)

	cases := map[string]string{
		"not base64":          "%%%not-base64%%%",
		"shorter than nonce":  "YWJj", // "abc"
		"tampered ciphertext": "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=",
	}
	for name, ct := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Decrypt(context.Background(), &accounts.CloudAccount{
				ID:                  "acct-1",
				EncryptedCredential: ct,
			})
			require.Error(t, err)
			assert.Equal(t, faults.KindDecryption, faults.KindOf(err))
		})
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	r := testResolver(t)
	nonce := bytes.Repeat([]byte{0x01}, 12)
	ciphertext, err := r.Encrypt(map[string]string{"k": "v"}, nonce)
	require.NoError(t, err)

	other, err := NewResolver(bytes.Repeat([]byte{0x43}, 32))
	require.NoError(t, err)

	_, err = other.Decrypt(context.Background(), &accounts.CloudAccount{
		ID:                  "acct-1",
		EncryptedCredential: ciphertext,
	})
	require.Error(t, err)
	assert.Equal(t, faults.KindDecryption, faults.KindOf(err))
}
