package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/scans"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create insert scan row baru dalam status running
func (r *ScanRepository) Create(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO posture_scans
(id, tenant_id, cloud_account_id, provider, status, started_at,
 critical, high, medium, low, findings_total,
 error, report_url, duration_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);
`
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

// Update simpan hasil akhir scan (status terminal, counts, error, report url)
func (r *ScanRepository) Update(ctx context.Context, s *domain.Scan) error {
	const q = `
UPDATE posture_scans
SET status = ?,
    completed_at = ?,
    critical = ?, high = ?, medium = ?, low = ?, findings_total = ?,
    error = ?,
    report_url = ?,
    duration_ms = ?
WHERE tenant_id = ? AND id = ?;`
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

// Get by ID + Tenant, nil kalau tidak ada
func (r *ScanRepository) Get(ctx context.Context, tenant string, id domain.ScanID) (*domain.Scan, error) {
	const q = `SELECT ` + scanColumns + `
FROM posture_scans
WHERE tenant_id=? AND id=? LIMIT 1;`
	s, err := scanRow(r.db.QueryRowContext(ctx, q, tenant, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Latest scans per tenant
func (r *ScanRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + scanColumns + `
FROM posture_scans
WHERE tenant_id=? ORDER BY started_at DESC LIMIT ?;`
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

// Summary agregasi severity counts N hari terakhir
func (r *ScanRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.SeverityCounts, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_scans,
       COALESCE(SUM(critical),0) AS critical,
       COALESCE(SUM(high),0)     AS high,
       COALESCE(SUM(medium),0)   AS medium,
       COALESCE(SUM(low),0)      AS low,
       COALESCE(SUM(findings_total),0) AS findings_total
FROM posture_scans
WHERE tenant_id=? AND started_at >= ?;
`
	var c domain.SeverityCounts
	var total int
	if err := r.db.QueryRowContext(ctx, q, tenant, cut).Scan(
		&total, &c.Critical, &c.High, &c.Medium, &c.Low, &c.Total,
	); err != nil {
		return domain.SeverityCounts{}, 0, err
	}
	return c, total, nil
}
