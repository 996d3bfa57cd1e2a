package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/lib/pq"

	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/scans"
)

// ScanRepository varian Postgres dari repo scan; sama dengan versi MySQL
// kecuali placeholder dan upsert syntax.
type ScanRepository struct{ db *sql.DB }

func NewScanRepository(db *sql.DB) *ScanRepository { return &ScanRepository{db: db} }

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (r *ScanRepository) Create(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO posture_scans
(id, tenant_id, cloud_account_id, provider, status, started_at,
 critical, high, medium, low, findings_total,
 error, report_url, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`
	started := s.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, stringOrDash(s.TenantID), stringOrDash(s.CloudAccountID), stringOrDash(s.Provider),
		stringOrDash(string(s.Status)), started,
		s.Counts.Critical, s.Counts.High, s.Counts.Medium, s.Counts.Low, s.Counts.Total,
		s.Error, s.ReportURL, s.DurationMS,
	)
	return err
}

func (r *ScanRepository) Update(ctx context.Context, s *domain.Scan) error {
	const q = `
UPDATE posture_scans
SET status = $1,
    completed_at = $2,
    critical = $3, high = $4, medium = $5, low = $6, findings_total = $7,
    error = $8,
    report_url = $9,
    duration_ms = $10
WHERE tenant_id = $11 AND id = $12;`
	_, err := r.db.ExecContext(ctx, q,
		s.Status, s.CompletedAt,
		s.Counts.Critical, s.Counts.High, s.Counts.Medium, s.Counts.Low, s.Counts.Total,
		s.Error, s.ReportURL, s.DurationMS,
		s.TenantID, s.ID,
	)
	return err
}

const scanColumns = `
id, tenant_id, cloud_account_id, provider, status, started_at, completed_at,
critical, high, medium, low, findings_total, error, report_url, duration_ms`

func scanRow(scanner interface{ Scan(...any) error }) (*domain.Scan, error) {
	var s domain.Scan
	var crit, hi, med, lo, tot int
	var completed sql.NullTime
	if err := scanner.Scan(
		&s.ID, &s.TenantID, &s.CloudAccountID, &s.Provider, &s.Status, &s.StartedAt, &completed,
		&crit, &hi, &med, &lo, &tot,
		&s.Error, &s.ReportURL, &s.DurationMS,
	); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	s.Counts = domain.SeverityCounts{Critical: crit, High: hi, Medium: med, Low: lo, Total: tot}
	return &s, nil
}

func (r *ScanRepository) Get(ctx context.Context, tenant string, id domain.ScanID) (*domain.Scan, error) {
	const q = `SELECT ` + scanColumns + `
FROM posture_scans
WHERE tenant_id=$1 AND id=$2 LIMIT 1;`
	s, err := scanRow(r.db.QueryRowContext(ctx, q, tenant, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *ScanRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + scanColumns + `
FROM posture_scans
WHERE tenant_id=$1 ORDER BY started_at DESC LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScanRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.SeverityCounts, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*),
       COALESCE(SUM(critical),0),
       COALESCE(SUM(high),0),
       COALESCE(SUM(medium),0),
       COALESCE(SUM(low),0),
       COALESCE(SUM(findings_total),0)
FROM posture_scans
WHERE tenant_id=$1 AND started_at >= $2;`
	var c domain.SeverityCounts
	var total int
	if err := r.db.QueryRowContext(ctx, q, tenant, cut).Scan(
		&total, &c.Critical, &c.High, &c.Medium, &c.Low, &c.Total,
	); err != nil {
		return domain.SeverityCounts{}, 0, err
	}
	return c, total, nil
}
