package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bryanwahyu/cloudguard-sec/internal/domain/accounts"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/findings"
)

// Provider closed set, bukan string bebas. Dispatch lewat registry
// jadi exhaustive, tidak ada default branch runtime.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// Parse normalisasi nama provider dari storage/request.
func Parse(s string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderAWS:
		return ProviderAWS, true
	case ProviderAzure:
		return ProviderAzure, true
	case ProviderGCP:
		return ProviderGCP, true
	}
	return "", false
}

// ReportedFinding bentuk hasil dari scanner, sudah decoded dan tervalidasi
// di boundary provider. Internal logic tidak pernah probing object bebas.
type ReportedFinding struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Severity     findings.Severity `json:"severity"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Category     string            `json:"category"`
	Remediation  string            `json:"remediation"`
	Evidence     json.RawMessage   `json:"evidence,omitempty"`
}

// Scanner capability port, satu implementasi per cloud provider.
// Kontrak: semua upstream call WAJIB lewat Gateway (rate limiter + cache)
// sebelum menyentuh API provider.
type Scanner interface {
	Provider() Provider
	Scan(ctx context.Context, creds *accounts.DecryptedCredentials) ([]ReportedFinding, error)
}
