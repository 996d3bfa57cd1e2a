package events

// Nama event yang dikenal core
const (
	NameFindingAlert = "finding.alert"
	NameScanFinished = "scan.finished"
)

// FindingAlert payload untuk finding critical/high
type FindingAlert struct {
	TenantID   string `json:"tenant_id"`
	FindingID  string `json:"finding_id"`
	ScanID     string `json:"scan_id"`
	Severity   string `json:"severity"`
	Title      string `json:"title"`
	ResourceID string `json:"resource_id"`
	Category   string `json:"category"`
}

// ScanFinished payload ringkas saat satu scan account selesai
type ScanFinished struct {
	TenantID  string `json:"tenant_id"`
	ScanID    string `json:"scan_id"`
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
	Total     int    `json:"total_findings"`
}
