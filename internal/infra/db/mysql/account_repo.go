package mysql

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/accounts"
)

// AccountRepository implementasi accounts.Directory di MySQL
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, tenant_id, provider, name, active, encrypted_credential, created_at`

func accountRow(scanner interface{ Scan(...any) error }) (*domain.CloudAccount, error) {
	var a domain.CloudAccount
	if err := scanner.Scan(
		&a.ID, &a.TenantID, &a.Provider, &a.Name, &a.Active, &a.EncryptedCredential, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) ListActive(ctx context.Context, tenant string) ([]*domain.CloudAccount, error) {
	const q = `SELECT ` + accountColumns + `
FROM cloud_accounts
WHERE tenant_id=? AND active=1
ORDER BY created_at ASC;`
	rows, err := r.db.QueryContext(ctx, q, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CloudAccount
	for rows.Next() {
		a, err := accountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepository) Get(ctx context.Context, tenant string, id string) (*domain.CloudAccount, error) {
	const q = `SELECT ` + accountColumns + `
FROM cloud_accounts
WHERE tenant_id=? AND id=? LIMIT 1;`
	a, err := accountRow(r.db.QueryRowContext(ctx, q, tenant, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}
