package findings

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence findings + dedup lookup)
type Repository interface {
	Create(ctx context.Context, f *Finding) error
	// FindOpenByFingerprint cari finding open dengan fingerprint sama yang
	// terdeteksi sejak since. Return nil kalau tidak ada.
	FindOpenByFingerprint(ctx context.Context, fp Fingerprint, since time.Time) (*Finding, error)
	// Touch refresh detectedAt in place, dipakai saat dedup window kena.
	Touch(ctx context.Context, tenant string, id FindingID, detectedAt time.Time) error
	ListByScan(ctx context.Context, tenant string, scanID string, limit int) ([]*Finding, error)
	Paginate(ctx context.Context, tenant string, page, pageSize int) (PaginatedResult, error)
}

// PaginatedResult halaman findings untuk API listing
type PaginatedResult struct {
	Data       []*Finding `json:"data"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	Total      int64      `json:"totalItems"`
	TotalPages int        `json:"totalPages"`
}
