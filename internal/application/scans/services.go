package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/cloudguard-sec/internal/application"
	appcache "github.com/bryanwahyu/cloudguard-sec/internal/cache"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/accounts"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/events"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/faults"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/findings"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/providers"
	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/scans"
	"github.com/bryanwahyu/cloudguard-sec/internal/middleware"
)

// Deps kumpulan handle yang dibutuhkan orchestrator: context object
// eksplisit, bukan singleton/global, supaya test isolation gampang.
type Deps struct {
	Accounts accounts.Directory
	Creds    accounts.CredentialResolver
	Registry *providers.Registry
	Scans    domain.Repository
	Findings findings.Repository
	Events   events.Sink
	Archive  domain.ReportArchive // optional, boleh nil
	Cache    *appcache.Cache      // optional, untuk summary posture
	Clock    application.Clock
}

// cacheCategorySummary prefix cache untuk posture summary per tenant
const cacheCategorySummary = "posture-summary"

// Options knob runtime orchestrator
type Options struct {
	// Concurrency ukuran worker pool fan-out per batch. <=1 berarti sequential.
	Concurrency int
	// PerAccountTimeout deadline satu account scan. 0 = tanpa deadline.
	PerAccountTimeout time.Duration
	// BatchTimeout deadline keseluruhan batch; lewat ini account baru tidak
	// akan mulai discan. 0 = tanpa deadline.
	BatchTimeout time.Duration
}

// Service orchestrator scan keamanan: fan-out ke semua account tenant,
// isolasi kegagalan per account, dedup findings, state machine scan,
// dan alert untuk findings critical/high.
type Service struct {
	deps Deps
	opts Options

	// serialisasi dedup per fingerprint antar worker dalam proses ini;
	// lintas proses mengandalkan index unik di store.
	fpMu    sync.Mutex
	fpLocks map[findings.Fingerprint]*sync.Mutex
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Clock == nil {
		deps.Clock = application.SystemClock{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Service{
		deps:    deps,
		opts:    opts,
		fpLocks: make(map[findings.Fingerprint]*sync.Mutex),
	}
}

// accountOutcome hasil satu account, diagregasi jadi BatchResult
type accountOutcome struct {
	counts domain.SeverityCounts
	accErr *domain.AccountError
}

// RunScan jalankan batch scan untuk tenant. accountID kosong berarti semua
// account aktif milik tenant. Kegagalan satu account dicatat di error list,
// tidak pernah menggagalkan batch; satu-satunya error yang propagate adalah
// gagal resolve daftar account itu sendiri.
func (s *Service) RunScan(ctx context.Context, tenant string, accountID string) (*domain.BatchResult, error) {
	started := s.deps.Clock.Now()

	targets, err := s.resolveTargets(ctx, tenant, accountID)
	if err != nil {
		return nil, err
	}
	result := &domain.BatchResult{}
	if len(targets) == 0 {
		return result, nil
	}

	batchCtx := ctx
	var cancel context.CancelFunc
	if s.opts.BatchTimeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	outcomes := make([]accountOutcome, len(targets))
	sem := make(chan struct{}, s.opts.Concurrency)
	var wg sync.WaitGroup

	for i, acc := range targets {
		sem <- struct{}{}
		// cek deadline setelah dapat slot: nunggu slot bisa lama, dan
		// batch yang sudah lewat deadline tidak boleh mulai scan baru
		if batchCtx.Err() != nil {
			<-sem
			outcomes[i] = accountOutcome{accErr: &domain.AccountError{
				AccountID: acc.ID,
				Provider:  acc.Provider,
				Error:     "batch deadline exceeded before scan started",
			}}
			continue
		}

		wg.Add(1)
		go func(i int, acc *accounts.CloudAccount) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = s.scanAccount(batchCtx, acc)
		}(i, acc)
	}
	wg.Wait()

	for _, o := range outcomes {
		result.AccountsProcessed++ // account tetap dihitung walau error
		result.Counts.Add(o.counts)
		if o.accErr != nil {
			result.Errors = append(result.Errors, *o.accErr)
		}
	}
	result.TotalFindings = result.Counts.Total
	result.DurationMS = s.deps.Clock.Now().Sub(started).Milliseconds()

	// summary tenant berubah setelah batch, buang cache-nya
	if s.deps.Cache != nil {
		s.deps.Cache.InvalidateCategory(ctx, cacheCategorySummary, tenant)
	}
	return result, nil
}

// resolveTargets: semua account aktif, atau satu account kalau diminta.
// Tidak ketemu = batch kosong, bukan error.
func (s *Service) resolveTargets(ctx context.Context, tenant, accountID string) ([]*accounts.CloudAccount, error) {
	if accountID != "" {
		acc, err := s.deps.Accounts.Get(ctx, tenant, accountID)
		if err != nil {
			return nil, fmt.Errorf("resolving account %s: %w", accountID, err)
		}
		if acc == nil || !acc.Active {
			return nil, nil
		}
		return []*accounts.CloudAccount{acc}, nil
	}
	list, err := s.deps.Accounts.ListActive(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("resolving accounts for tenant %s: %w", tenant, err)
	}
	return list, nil
}

// scanAccount proses satu account secara independen. Semua error ditangkap
// di sini supaya tidak pernah bocor dan menggagalkan account lain.
func (s *Service) scanAccount(ctx context.Context, acc *accounts.CloudAccount) accountOutcome {
	fail := func(err error) accountOutcome {
		return accountOutcome{accErr: &domain.AccountError{
			AccountID: acc.ID,
			Provider:  acc.Provider,
			Error:     err.Error(),
		}}
	}

	creds, err := s.deps.Creds.Decrypt(ctx, acc)
	if err != nil {
		return fail(err)
	}

	scanner, err := s.deps.Registry.Resolve(acc.Provider)
	if err != nil {
		return fail(err)
	}

	now := s.deps.Clock.Now()
	scan := &domain.Scan{
		ID:             domain.ScanID(uuid.New().String()),
		TenantID:       acc.TenantID,
		CloudAccountID: acc.ID,
		Provider:       acc.Provider,
		Status:         domain.StatusRunning,
		StartedAt:      now,
	}
	if err := s.deps.Scans.Create(ctx, scan); err != nil {
		return fail(faults.Persistence(err))
	}

	scanCtx := ctx
	var cancel context.CancelFunc
	if s.opts.PerAccountTimeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, s.opts.PerAccountTimeout)
		defer cancel()
	}

	reported, err := scanner.Scan(scanCtx, creds)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = faults.ProviderAPI(fmt.Errorf("scan timed out after %s", s.opts.PerAccountTimeout))
		} else if faults.KindOf(err) == "" {
			err = faults.ProviderAPI(err)
		}
		s.markFailed(scan, err)
		return fail(err)
	}

	s.archiveReport(ctx, scan, reported)

	counts, err := s.persistFindings(ctx, scan, reported)
	scan.Counts = counts
	if err != nil {
		s.markFailed(scan, err)
		return accountOutcome{counts: counts, accErr: &domain.AccountError{
			AccountID: acc.ID,
			Provider:  acc.Provider,
			Error:     err.Error(),
		}}
	}

	done := s.deps.Clock.Now()
	if terr := scan.Transition(domain.StatusCompleted, done); terr != nil {
		log.Printf("scan state machine violation: %v", terr)
	}
	if err := s.deps.Scans.Update(ctx, scan); err != nil {
		return accountOutcome{counts: counts, accErr: &domain.AccountError{
			AccountID: acc.ID,
			Provider:  acc.Provider,
			Error:     faults.Persistence(err).Error(),
		}}
	}

	s.deps.Events.Emit(events.NameScanFinished, events.ScanFinished{
		TenantID:  acc.TenantID,
		ScanID:    string(scan.ID),
		AccountID: acc.ID,
		Status:    string(scan.Status),
		Total:     counts.Total,
	})
	return accountOutcome{counts: counts}
}

// markFailed transisi scan ke failed + simpan pesan error. Best effort:
// kegagalan update di sini cuma dilog.
func (s *Service) markFailed(scan *domain.Scan, cause error) {
	scan.Error = cause.Error()
	if terr := scan.Transition(domain.StatusFailed, s.deps.Clock.Now()); terr != nil {
		log.Printf("scan state machine violation: %v", terr)
		return
	}
	// pakai context baru: scan row harus tetap ditandai failed walau
	// context account sudah dibatalkan
	uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Scans.Update(uctx, scan); err != nil {
		log.Printf("failed to mark scan %s failed: %v", scan.ID, err)
	}
}

// persistFindings simpan findings sesuai urutan scanner melaporkan, dengan
// dedup fingerprint 7 hari: refresh detectedAt in place, bukan insert baru.
func (s *Service) persistFindings(ctx context.Context, scan *domain.Scan, reported []providers.ReportedFinding) (domain.SeverityCounts, error) {
	var counts domain.SeverityCounts

	for _, rf := range reported {
		if !rf.Severity.Valid() {
			// respon provider tidak valid di boundary, catat dan lewati
			log.Printf("dropping finding with unknown severity %q from scan %s", rf.Severity, scan.ID)
			continue
		}

		id, err := s.upsertFinding(ctx, scan, rf)
		if err != nil {
			return counts, faults.Persistence(err)
		}

		switch rf.Severity {
		case findings.SeverityCritical:
			counts.Critical++
		case findings.SeverityHigh:
			counts.High++
		case findings.SeverityMedium:
			counts.Medium++
		case findings.SeverityLow:
			counts.Low++
		}
		counts.Total++

		// alert fire-and-forget untuk critical/high; tidak boleh menunda
		// persistence maupun account berikutnya
		if rf.Severity.Alertable() {
			s.deps.Events.Emit(events.NameFindingAlert, events.FindingAlert{
				TenantID:   scan.TenantID,
				FindingID:  string(id),
				ScanID:     string(scan.ID),
				Severity:   string(rf.Severity),
				Title:      rf.Title,
				ResourceID: rf.ResourceID,
				Category:   rf.Category,
			})
			middleware.IncrementAlerts()
		}
	}
	return counts, nil
}

// upsertFinding: dalam dedup window refresh detectedAt finding open yang
// sudah ada; di luar window insert row baru.
func (s *Service) upsertFinding(ctx context.Context, scan *domain.Scan, rf providers.ReportedFinding) (findings.FindingID, error) {
	now := s.deps.Clock.Now()
	fp := findings.Fingerprint{TenantID: scan.TenantID, Title: rf.Title, ResourceID: rf.ResourceID}

	unlock := s.lockFingerprint(fp)
	defer unlock()

	since := now.Add(-findings.DedupWindow)
	existing, err := s.deps.Findings.FindOpenByFingerprint(ctx, fp, since)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if err := s.deps.Findings.Touch(ctx, scan.TenantID, existing.ID, now); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	f := &findings.Finding{
		ID:          findings.FindingID(uuid.New().String()),
		TenantID:    scan.TenantID,
		ScanID:      string(scan.ID),
		ResourceID:  rf.ResourceID,
		Title:       rf.Title,
		Description: rf.Description,
		Severity:    rf.Severity,
		Status:      findings.StatusOpen,
		Category:    rf.Category,
		Remediation: rf.Remediation,
		DetectedAt:  now,
		Evidence:    rf.Evidence,
	}
	if err := s.deps.Findings.Create(ctx, f); err != nil {
		return "", err
	}
	return f.ID, nil
}

func (s *Service) lockFingerprint(fp findings.Fingerprint) func() {
	s.fpMu.Lock()
	mu, ok := s.fpLocks[fp]
	if !ok {
		mu = &sync.Mutex{}
		s.fpLocks[fp] = mu
	}
	s.fpMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// archiveReport simpan raw scanner output ke object storage, best effort.
func (s *Service) archiveReport(ctx context.Context, scan *domain.Scan, reported []providers.ReportedFinding) {
	if s.deps.Archive == nil {
		return
	}
	payload, err := json.Marshal(reported)
	if err != nil {
		log.Printf("marshal report for scan %s: %v", scan.ID, err)
		return
	}
	key := fmt.Sprintf("%s/%s/%s.json", scan.TenantID, scan.Provider, scan.ID)
	url, err := s.deps.Archive.Put(ctx, key, payload, "application/json")
	if err != nil {
		log.Printf("archive report for scan %s: %v", scan.ID, err)
		return
	}
	scan.ReportURL = url
}

// Latest ambil N scan terakhir
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Scan, error) {
	return s.deps.Scans.Latest(ctx, tenant, limit)
}

// Get ambil 1 scan by id
func (s *Service) Get(ctx context.Context, tenant string, id domain.ScanID) (*domain.Scan, error) {
	return s.deps.Scans.Get(ctx, tenant, id)
}

// Summary rekap posture N hari terakhir. Data posture cepat basi, jadi
// lewat cache-aside dengan TTL pendek; cache outage jatuh ke query langsung.
func (s *Service) Summary(ctx context.Context, tenant string, sinceDays int) (map[string]any, error) {
	compute := func(ctx context.Context) ([]byte, error) {
		counts, total, err := s.deps.Scans.Summary(ctx, tenant, sinceDays)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"total_scans": total,
			"critical":    counts.Critical,
			"high":        counts.High,
			"medium":      counts.Medium,
			"low":         counts.Low,
		})
	}

	var raw []byte
	var err error
	if s.deps.Cache != nil {
		raw, err = s.deps.Cache.GetOrSet(ctx, cacheCategorySummary, tenant,
			[]string{fmt.Sprintf("days-%d", sinceDays)}, appcache.TTLShort, compute)
	} else {
		raw, err = compute(ctx)
	}
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Findings listing untuk API
func (s *Service) Findings(ctx context.Context, tenant string, page, pageSize int) (findings.PaginatedResult, error) {
	return s.deps.Findings.Paginate(ctx, tenant, page, pageSize)
}
