package analyst

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis hasil AI remediation guidance untuk satu scan, disimpan untuk
// audit dan retrieval.
type Analysis struct {
	ID        AnalysisID `json:"id"`
	TenantID  string     `json:"tenant_id"`
	ScanID    string     `json:"scan_id"`
	Result    string     `json:"result"` // JSON string from AI
	CreatedAt time.Time  `json:"created_at"`
}
