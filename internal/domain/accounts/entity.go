package accounts

import "time"

// CloudAccount satu subscription/account yang terhubung di bawah tenant,
// terikat ke satu provider.
type CloudAccount struct {
	ID                  string    `json:"id"`
	TenantID            string    `json:"tenant_id"`
	Provider            string    `json:"provider"`
	Name                string    `json:"name"`
	Active              bool      `json:"active"`
	EncryptedCredential string    `json:"-"` // base64 ciphertext, jangan pernah di-serialize
	CreatedAt           time.Time `json:"created_at"`
}

// DecryptedCredentials hasil decrypt, opaque bagi orchestrator,
// diteruskan apa adanya ke scanner provider.
type DecryptedCredentials struct {
	Provider string
	Fields   map[string]string
}
