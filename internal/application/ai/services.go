package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/analyst"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/findings"
)

// Service use-case AI remediation advisor: rangkum findings satu scan,
// minta guidance ke model, simpan hasilnya untuk audit.
type Service struct {
	client   domain.Client
	repo     domain.Repository
	findings findings.Repository
}

func NewService(client domain.Client, repo domain.Repository, findingsRepo findings.Repository) *Service {
	return &Service{client: client, repo: repo, findings: findingsRepo}
}

// AnalyzeScan ambil findings scan, kirim ringkasannya ke AI, simpan analysis
func (s *Service) AnalyzeScan(ctx context.Context, tenant string, scanID string) (*domain.Analysis, error) {
	list, err := s.findings.ListByScan(ctx, tenant, scanID, 100)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no findings for scan %s", scanID)
	}

	type item struct {
		Title      string `json:"title"`
		Severity   string `json:"severity"`
		ResourceID string `json:"resource_id"`
		Category   string `json:"category,omitempty"`
	}
	items := make([]item, 0, len(list))
	for _, f := range list {
		items = append(items, item{
			Title:      f.Title,
			Severity:   string(f.Severity),
			ResourceID: f.ResourceID,
			Category:   f.Category,
		})
	}
	summary, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	result, err := s.client.SuggestRemediation(ctx, string(summary))
	if err != nil {
		return nil, err
	}

	a := &domain.Analysis{
		ID:        domain.AnalysisID(uuid.New().String()),
		TenantID:  tenant,
		ScanID:    scanID,
		Result:    result,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnalyses halaman analyses untuk tenant
func (s *Service) ListAnalyses(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Analysis, error) {
	return s.repo.Paginate(ctx, tenant, page, pageSize)
}

// LatestByScan analysis terakhir untuk satu scan
func (s *Service) LatestByScan(ctx context.Context, tenant string, scanID string) (*domain.Analysis, error) {
	return s.repo.LatestByScan(ctx, tenant, scanID)
}
