package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/cloudguard-sec/internal/domain/accounts"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/faults"
)

// Resolver decrypt stored credentials dengan AES-256-GCM. Ciphertext di
// account record = base64(nonce || sealed), plaintext-nya JSON map field
// kredensial per provider.
type Resolver struct {
	aead cipher.AEAD
}

// NewResolver key harus 32 byte (AES-256)
func NewResolver(key []byte) (*Resolver, error) {
	if len(key) != 32 {
		return nil, faults.Configuration("credential key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Resolver{aead: aead}, nil
}

func (r *Resolver) Decrypt(_ context.Context, account *accounts.CloudAccount) (*accounts.DecryptedCredentials, error) {
	raw, err := base64.StdEncoding.DecodeString(account.EncryptedCredential)
	if err != nil {
		return nil, faults.Decryption(fmt.Errorf("account %s: malformed ciphertext: %w", account.ID, err))
	}
	if len(raw) < r.aead.NonceSize() {
		return nil, faults.Decryption(fmt.Errorf("account %s: ciphertext shorter than nonce", account.ID))
	}
	nonce, sealed := raw[:r.aead.NonceSize()], raw[r.aead.NonceSize():]

	plain, err := r.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, faults.Decryption(fmt.Errorf("account %s: %w", account.ID, err))
	}

	var fields map[string]string
	if err := json.Unmarshal(plain, &fields); err != nil {
		return nil, faults.Decryption(fmt.Errorf("account %s: credential payload not valid JSON: %w", account.ID, err))
	}
	return &accounts.DecryptedCredentials{Provider: account.Provider, Fields: fields}, nil
}

// Encrypt helper untuk onboarding account (dipakai tooling/seeder, bukan
// jalur scan).
func (r *Resolver) Encrypt(fields map[string]string, nonce []byte) (string, error) {
	if len(nonce) != r.aead.NonceSize() {
		return "", fmt.Errorf("nonce must be %d bytes", r.aead.NonceSize())
	}
	plain, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	sealed := r.aead.Seal(nil, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, nonce...), sealed...)), nil
}
