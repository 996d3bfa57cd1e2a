package findings

import (
	"encoding/json"
	"time"
)

// ID tipe untuk Finding
type FindingID string

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid cek severity dikenal
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Alertable: hanya critical/high yang memicu event alert
func (s Severity) Alertable() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Status enum
type Status string

const (
	StatusOpen      Status = "open"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// DedupWindow: dua finding dengan fingerprint sama dalam window ini
// dianggap issue logis yang sama.
const DedupWindow = 7 * 24 * time.Hour

// Fingerprint identitas logis sebuah issue: (tenant, title, resource, open)
type Fingerprint struct {
	TenantID   string
	Title      string
	ResourceID string
}

// Finding satu issue keamanan/compliance yang terdeteksi pada satu resource.
// Status/resolvedAt dimutasi workflow resolusi di luar core ini; orchestrator
// hanya menulis saat create dan refresh detectedAt.
type Finding struct {
	ID          FindingID       `json:"id"`
	TenantID    string          `json:"tenant_id"`
	ScanID      string          `json:"scan_id"`
	ResourceID  string          `json:"resource_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Severity    Severity        `json:"severity"`
	Status      Status          `json:"status"`
	Category    string          `json:"category,omitempty"`
	Remediation string          `json:"remediation,omitempty"`
	DetectedAt  time.Time       `json:"detected_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
}

// FingerprintOf ambil fingerprint dari finding
func (f *Finding) FingerprintOf() Fingerprint {
	return Fingerprint{TenantID: f.TenantID, Title: f.Title, ResourceID: f.ResourceID}
}
