package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/findings"
)

// FindingRepository varian Postgres dari repo findings
type FindingRepository struct{ db *sql.DB }

func NewFindingRepository(db *sql.DB) *FindingRepository { return &FindingRepository{db: db} }

const findingColumns = `
id, tenant_id, scan_id, resource_id, title, description, severity, status,
category, remediation, detected_at, resolved_at, evidence`

func findingRow(scanner interface{ Scan(...any) error }) (*domain.Finding, error) {
	var f domain.Finding
	var resolved sql.NullTime
	var evidence sql.NullString
	if err := scanner.Scan(
		&f.ID, &f.TenantID, &f.ScanID, &f.ResourceID, &f.Title, &f.Description,
		&f.Severity, &f.Status, &f.Category, &f.Remediation, &f.DetectedAt,
		&resolved, &evidence,
	); err != nil {
		return nil, err
	}
	if resolved.Valid {
		t := resolved.Time
		f.ResolvedAt = &t
	}
	if evidence.Valid {
		f.Evidence = []byte(evidence.String)
	}
	return &f, nil
}

func (r *FindingRepository) Create(ctx context.Context, f *domain.Finding) error {
	const q = `
INSERT INTO posture_findings
(id, tenant_id, scan_id, resource_id, title, description, severity, status,
 category, remediation, detected_at, evidence)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	detected := f.DetectedAt
	if detected.IsZero() {
		detected = time.Now()
	}
	var evidence any
	if len(f.Evidence) > 0 {
		evidence = string(f.Evidence)
	}
	_, err := r.db.ExecContext(ctx, q,
		f.ID, stringOrDash(f.TenantID), stringOrDash(f.ScanID), f.ResourceID,
		f.Title, f.Description, f.Severity, f.Status,
		f.Category, f.Remediation, detected, evidence,
	)
	return err
}

func (r *FindingRepository) FindOpenByFingerprint(ctx context.Context, fp domain.Fingerprint, since time.Time) (*domain.Finding, error) {
	const q = `SELECT ` + findingColumns + `
FROM posture_findings
WHERE tenant_id=$1 AND title=$2 AND resource_id=$3 AND status='open' AND detected_at >= $4
ORDER BY detected_at DESC
LIMIT 1;`
	f, err := findingRow(r.db.QueryRowContext(ctx, q, fp.TenantID, fp.Title, fp.ResourceID, since))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func (r *FindingRepository) Touch(ctx context.Context, tenant string, id domain.FindingID, detectedAt time.Time) error {
	const q = `
UPDATE posture_findings
SET detected_at = $1
WHERE tenant_id = $2 AND id = $3;`
	_, err := r.db.ExecContext(ctx, q, detectedAt, tenant, id)
	return err
}

func (r *FindingRepository) ListByScan(ctx context.Context, tenant string, scanID string, limit int) ([]*domain.Finding, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + findingColumns + `
FROM posture_findings
WHERE tenant_id=$1 AND scan_id=$2
ORDER BY detected_at ASC
LIMIT $3;`
	rows, err := r.db.QueryContext(ctx, q, tenant, scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Finding
	for rows.Next() {
		f, err := findingRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FindingRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `SELECT ` + findingColumns + `
FROM posture_findings
WHERE tenant_id=$1
ORDER BY detected_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, err
	}
	defer rows.Close()

	var list []*domain.Finding
	for rows.Next() {
		f, err := findingRow(rows)
		if err != nil {
			return domain.PaginatedResult{}, err
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posture_findings WHERE tenant_id = $1", tenant,
	).Scan(&total); err != nil {
		return domain.PaginatedResult{}, err
	}

	return domain.PaginatedResult{
		Data:       list,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}
