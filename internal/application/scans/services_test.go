package scans

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcache "github.com/bryanwahyu/cloudguard-sec/internal/cache"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/accounts"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/faults"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/findings"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/providers"
	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/scans"
	"github.com/bryanwahyu/cloudguard-sec/internal/middleware"
)

// ---- fakes ----

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	list []*accounts.CloudAccount
	err  error
}

func (d *fakeDirectory) ListActive(_ context.Context, tenant string) ([]*accounts.CloudAccount, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []*accounts.CloudAccount
	for _, acc := range d.list {
		if acc.TenantID == tenant && acc.Active {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (d *fakeDirectory) Get(_ context.Context, tenant, id string) (*accounts.CloudAccount, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, acc := range d.list {
		if acc.TenantID == tenant && acc.ID == id {
			return acc, nil
		}
	}
	return nil, nil
}

type fakeResolver struct {
	failFor map[string]bool
}

func (r *fakeResolver) Decrypt(_ context.Context, acc *accounts.CloudAccount) (*accounts.DecryptedCredentials, error) {
	if r.failFor[acc.ID] {
		return nil, faults.Decryption(errors.New("ciphertext corrupt"))
	}
	return &accounts.DecryptedCredentials{Provider: acc.Provider, Fields: map[string]string{"key": "v"}}, nil
}

type fakeScanRepo struct {
	mu    sync.Mutex
	scans map[domain.ScanID]*domain.Scan

	summaryCalls  int
	summaryCounts domain.SeverityCounts
	summaryTotal  int
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{scans: make(map[domain.ScanID]*domain.Scan)}
}

func (r *fakeScanRepo) Create(_ context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scans[s.ID] = &cp
	return nil
}

func (r *fakeScanRepo) Update(_ context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scans[s.ID] = &cp
	return nil
}

func (r *fakeScanRepo) Get(_ context.Context, tenant string, id domain.ScanID) (*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.TenantID != tenant {
		return nil, nil
	}
	return s, nil
}

func (r *fakeScanRepo) Latest(_ context.Context, tenant string, limit int) ([]*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Scan
	for _, s := range r.scans {
		if s.TenantID == tenant {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeScanRepo) Summary(_ context.Context, tenant string, sinceDays int) (domain.SeverityCounts, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaryCalls++
	return r.summaryCounts, r.summaryTotal, nil
}

func (r *fakeScanRepo) all() []*domain.Scan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Scan, 0, len(r.scans))
	for _, s := range r.scans {
		out = append(out, s)
	}
	return out
}

type fakeFindingRepo struct {
	mu   sync.Mutex
	rows []*findings.Finding
}

func (r *fakeFindingRepo) Create(_ context.Context, f *findings.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeFindingRepo) FindOpenByFingerprint(_ context.Context, fp findings.Fingerprint, since time.Time) (*findings.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.rows {
		if f.Status == findings.StatusOpen && f.FingerprintOf() == fp && !f.DetectedAt.Before(since) {
			return f, nil
		}
	}
	return nil, nil
}

func (r *fakeFindingRepo) Touch(_ context.Context, tenant string, id findings.FindingID, detectedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.rows {
		if f.TenantID == tenant && f.ID == id {
			f.DetectedAt = detectedAt
			return nil
		}
	}
	return errors.New("finding not found")
}

func (r *fakeFindingRepo) ListByScan(_ context.Context, tenant, scanID string, limit int) ([]*findings.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*findings.Finding
	for _, f := range r.rows {
		if f.TenantID == tenant && f.ScanID == scanID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFindingRepo) Paginate(_ context.Context, tenant string, page, pageSize int) (findings.PaginatedResult, error) {
	return findings.PaginatedResult{}, nil
}

func (r *fakeFindingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type capturedEvent struct {
	name    string
	payload any
}

type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (s *captureSink) Emit(name string, payload any) {
	s.mu.Lock()
	s.events = append(s.events, capturedEvent{name: name, payload: payload})
	s.mu.Unlock()
}

func (s *captureSink) byName(name string) []capturedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capturedEvent
	for _, e := range s.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeScanner struct {
	provider providers.Provider
	fn       func(ctx context.Context) ([]providers.ReportedFinding, error)
}

func (s *fakeScanner) Provider() providers.Provider { return s.provider }

func (s *fakeScanner) Scan(ctx context.Context, _ *accounts.DecryptedCredentials) ([]providers.ReportedFinding, error) {
	return s.fn(ctx)
}

func activeAccount(id, tenant, provider string) *accounts.CloudAccount {
	return &accounts.CloudAccount{ID: id, TenantID: tenant, Provider: provider, Active: true}
}

func reported(title, resource string, sev findings.Severity) providers.ReportedFinding {
	return providers.ReportedFinding{Title: title, ResourceID: resource, Severity: sev}
}

func newTestService(t *testing.T, dir *fakeDirectory, reg *providers.Registry, opts Options) (*Service, *fakeScanRepo, *fakeFindingRepo, *captureSink, *stubClock) {
	t.Helper()
	scanRepo := newFakeScanRepo()
	findRepo := &fakeFindingRepo{}
	sink := &captureSink{}
	clock := &stubClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(Deps{
		Accounts: dir,
		Creds:    &fakeResolver{},
		Registry: reg,
		Scans:    scanRepo,
		Findings: findRepo,
		Events:   sink,
		Clock:    clock,
	}, opts)
	return svc, scanRepo, findRepo, sink, clock
}

// ---- tests ----

func TestRunScanIsolatesAccountFailures(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
		activeAccount("acct-b", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return []providers.ReportedFinding{
			reported("public bucket", "bucket-1", findings.SeverityCritical),
			reported("old tls policy", "lb-1", findings.SeverityMedium),
			reported("wide ingress", "sg-1", findings.SeverityMedium),
		}, nil
	}})

	svc, scanRepo, findRepo, sink, _ := newTestService(t, dir, reg, Options{Concurrency: 4})
	svc.deps.Creds = &fakeResolver{failFor: map[string]bool{"acct-b": true}}

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)

	// kegagalan decrypt acct-b tidak menggagalkan batch maupun acct-a
	assert.Equal(t, 2, result.AccountsProcessed)
	assert.Equal(t, 3, result.TotalFindings)
	assert.Equal(t, 1, result.Counts.Critical)
	assert.Equal(t, 2, result.Counts.Medium)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "acct-b", result.Errors[0].AccountID)
	assert.Contains(t, result.Errors[0].Error, "decryption")

	// decrypt gagal sebelum scan dibuat: hanya ada satu scan row, completed
	all := scanRepo.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.StatusCompleted, all[0].Status)
	assert.Equal(t, "acct-a", all[0].CloudAccountID)
	assert.Equal(t, 3, all[0].Counts.Total)

	assert.Equal(t, 3, findRepo.count())
	assert.Len(t, sink.byName("finding.alert"), 1)
	assert.Len(t, sink.byName("scan.finished"), 1)
}

func TestRunScanDedupWithinWindow(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return []providers.ReportedFinding{
			reported("public bucket", "bucket-1", findings.SeverityHigh),
		}, nil
	}})

	svc, _, findRepo, _, clock := newTestService(t, dir, reg, Options{})

	_, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	require.Equal(t, 1, findRepo.count())
	firstDetected := findRepo.rows[0].DetectedAt

	// hari ke-5: fingerprint sama masih dalam window, refresh bukan insert
	clock.Advance(4 * 24 * time.Hour)
	_, err = svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	require.Equal(t, 1, findRepo.count())
	assert.Equal(t, firstDetected.Add(4*24*time.Hour), findRepo.rows[0].DetectedAt)

	// 8 hari setelah refresh terakhir: di luar window, jadi row baru
	clock.Advance(8 * 24 * time.Hour)
	_, err = svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, findRepo.count())
}

func TestRunScanDedupRespectsFingerprintFields(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return []providers.ReportedFinding{
			reported("public bucket", "bucket-1", findings.SeverityHigh),
			reported("public bucket", "bucket-2", findings.SeverityHigh),
			reported("no encryption", "bucket-1", findings.SeverityMedium),
		}, nil
	}})

	svc, _, findRepo, _, _ := newTestService(t, dir, reg, Options{})

	_, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	// judul sama tapi resource beda (dan sebaliknya) bukan duplikat
	assert.Equal(t, 3, findRepo.count())
}

func TestRunScanAlertsOnlyCriticalAndHigh(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return []providers.ReportedFinding{
			reported("root key active", "iam-root", findings.SeverityCritical),
			reported("public bucket", "bucket-1", findings.SeverityHigh),
			reported("old tls policy", "lb-1", findings.SeverityMedium),
			reported("untagged vm", "vm-1", findings.SeverityLow),
		}, nil
	}})

	svc, _, _, sink, _ := newTestService(t, dir, reg, Options{})
	alertsBefore := middleware.GetMetrics()["alerts_emitted"].(uint64)

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalFindings)
	assert.Len(t, sink.byName("finding.alert"), 2)

	// counter alert di /metrics ikut naik per event yang di-emit
	assert.Equal(t, alertsBefore+2, middleware.GetMetrics()["alerts_emitted"].(uint64))
}

func TestRunScanDropsUnknownSeverity(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return []providers.ReportedFinding{
			reported("public bucket", "bucket-1", findings.SeverityHigh),
			reported("weird row", "x-1", findings.Severity("catastrophic")),
		}, nil
	}})

	svc, _, findRepo, _, _ := newTestService(t, dir, reg, Options{})

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalFindings)
	assert.Equal(t, 1, findRepo.count())
	assert.Empty(t, result.Errors)
}

func TestRunScanUnknownProviderIsPerAccountError(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "oracle"),
	}}
	svc, scanRepo, _, _, _ := newTestService(t, dir, providers.NewRegistry(), Options{})

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AccountsProcessed)
	assert.Equal(t, 0, result.TotalFindings)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "provider not supported")
	assert.Empty(t, scanRepo.all())
}

func TestRunScanScannerFailureMarksScanFailed(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return nil, errors.New("throttled by upstream")
	}})

	svc, scanRepo, _, sink, _ := newTestService(t, dir, reg, Options{})

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AccountsProcessed)
	require.Len(t, result.Errors, 1)

	all := scanRepo.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.StatusFailed, all[0].Status)
	assert.Contains(t, all[0].Error, "throttled by upstream")
	require.NotNil(t, all[0].CompletedAt)
	assert.Empty(t, sink.byName("scan.finished"))
}

func TestRunScanPerAccountTimeout(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	svc, scanRepo, _, _, _ := newTestService(t, dir, reg, Options{PerAccountTimeout: 20 * time.Millisecond})

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "timed out")

	all := scanRepo.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.StatusFailed, all[0].Status)
}

func TestRunScanBatchDeadlineSkipsRemainingAccounts(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
		activeAccount("acct-b", "tenant-1", "aws"),
		activeAccount("acct-c", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	// concurrency 1: acct-a pegang satu-satunya slot sampai batch deadline
	// lewat, jadi acct-b dan acct-c baru dapat slot setelah deadline
	svc, scanRepo, _, _, _ := newTestService(t, dir, reg, Options{
		Concurrency:  1,
		BatchTimeout: 30 * time.Millisecond,
	})

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)

	// account yang di-skip tetap dihitung dan dapat error sendiri
	assert.Equal(t, 3, result.AccountsProcessed)
	require.Len(t, result.Errors, 3)
	for _, accErr := range result.Errors[1:] {
		assert.Contains(t, accErr.Error, "batch deadline exceeded")
	}

	// hanya acct-a yang benar-benar mulai scan; sisanya tidak boleh
	// jalan setelah deadline walau sudah sempat antre slot
	all := scanRepo.all()
	require.Len(t, all, 1)
	assert.Equal(t, "acct-a", all[0].CloudAccountID)
	assert.Equal(t, domain.StatusFailed, all[0].Status)
}

func TestRunScanEmptyAccountListIsEmptyResult(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, &fakeDirectory{}, providers.NewRegistry(), Options{})

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.AccountsProcessed)
	assert.Empty(t, result.Errors)
}

func TestRunScanUnknownSingleAccountIsEmptyResult(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, &fakeDirectory{}, providers.NewRegistry(), Options{})

	result, err := svc.RunScan(context.Background(), "tenant-1", "acct-missing")
	require.NoError(t, err)
	assert.Equal(t, 0, result.AccountsProcessed)
}

func TestRunScanDirectoryFailurePropagates(t *testing.T) {
	svc, _, _, _, _ := newTestService(t,
		&fakeDirectory{err: errors.New("db gone")}, providers.NewRegistry(), Options{})

	result, err := svc.RunScan(context.Background(), "tenant-1", "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "resolving accounts")
}

func TestRunScanSingleAccountTargetsOnlyThatAccount(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
		activeAccount("acct-b", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return []providers.ReportedFinding{
			reported("public bucket", "bucket-1", findings.SeverityLow),
		}, nil
	}})

	svc, scanRepo, _, _, _ := newTestService(t, dir, reg, Options{})

	result, err := svc.RunScan(context.Background(), "tenant-1", "acct-b")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AccountsProcessed)

	all := scanRepo.all()
	require.Len(t, all, 1)
	assert.Equal(t, "acct-b", all[0].CloudAccountID)
}

func TestRunScanInvalidatesSummaryCache(t *testing.T) {
	dir := &fakeDirectory{list: []*accounts.CloudAccount{
		activeAccount("acct-a", "tenant-1", "aws"),
	}}
	reg := providers.NewRegistry()
	reg.Register(&fakeScanner{provider: providers.ProviderAWS, fn: func(ctx context.Context) ([]providers.ReportedFinding, error) {
		return nil, nil
	}})

	svc, _, _, _, _ := newTestService(t, dir, reg, Options{})
	cache := appcache.New(appcache.NewMemoryStore())
	svc.deps.Cache = cache

	ctx := context.Background()
	cache.Set(ctx, cacheCategorySummary, "tenant-1", []string{"days-30"}, []byte("stale"), appcache.TTLShort)

	_, err := svc.RunScan(ctx, "tenant-1", "")
	require.NoError(t, err)

	_, ok := cache.Get(ctx, cacheCategorySummary, "tenant-1", []string{"days-30"})
	assert.False(t, ok, "summary cache entry should be invalidated after a batch")
}

func TestSummaryServedFromCache(t *testing.T) {
	svc, scanRepo, _, _, _ := newTestService(t, &fakeDirectory{}, providers.NewRegistry(), Options{})
	svc.deps.Cache = appcache.New(appcache.NewMemoryStore())
	scanRepo.summaryCounts = domain.SeverityCounts{Critical: 2, Total: 5}
	scanRepo.summaryTotal = 7

	ctx := context.Background()
	out, err := svc.Summary(ctx, "tenant-1", 30)
	require.NoError(t, err)
	assert.EqualValues(t, 7, out["total_scans"])
	assert.EqualValues(t, 2, out["critical"])
	require.Equal(t, 1, scanRepo.summaryCalls)

	// call kedua dilayani cache, repo tidak disentuh lagi
	_, err = svc.Summary(ctx, "tenant-1", 30)
	require.NoError(t, err)
	assert.Equal(t, 1, scanRepo.summaryCalls)

	// horizon hari berbeda adalah key berbeda
	_, err = svc.Summary(ctx, "tenant-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, scanRepo.summaryCalls)
}
