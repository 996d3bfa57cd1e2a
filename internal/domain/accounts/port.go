package accounts

import "context"

// Directory port untuk lookup cloud accounts milik tenant
type Directory interface {
	// ListActive semua account aktif milik tenant
	ListActive(ctx context.Context, tenant string) ([]*CloudAccount, error)
	// Get satu account by id, nil kalau tidak ketemu
	Get(ctx context.Context, tenant string, id string) (*CloudAccount, error)
}

// CredentialResolver port untuk decrypt stored credentials.
// Gagal dengan faults.KindDecryption kalau ciphertext rusak / key hilang.
type CredentialResolver interface {
	Decrypt(ctx context.Context, account *CloudAccount) (*DecryptedCredentials, error)
}
