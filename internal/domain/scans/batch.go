package scans

// AccountError catat kegagalan satu account tanpa menggagalkan batch
type AccountError struct {
	AccountID string `json:"account_id"`
	Provider  string `json:"provider"`
	Error     string `json:"error"`
}

// BatchResult hasil agregat satu invocation RunScan. Transient, tidak
// dipersist; tiap Scan row per-account yang jadi record durable.
type BatchResult struct {
	AccountsProcessed int            `json:"accounts_processed"`
	TotalFindings     int            `json:"total_findings"`
	Counts            SeverityCounts `json:"counts"`
	Errors            []AccountError `json:"errors,omitempty"`
	DurationMS        int64          `json:"duration_ms"`
}
