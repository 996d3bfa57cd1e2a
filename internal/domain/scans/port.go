package scans

import "context"

// Repository port (interface untuk persistence scan rows)
type Repository interface {
	Create(ctx context.Context, s *Scan) error
	Update(ctx context.Context, s *Scan) error
	Get(ctx context.Context, tenant string, id ScanID) (*Scan, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Scan, error)
	Summary(ctx context.Context, tenant string, sinceDays int) (SeverityCounts, int, error)
}

// ReportArchive port untuk menyimpan raw scanner output (evidence report)
type ReportArchive interface {
	Put(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

