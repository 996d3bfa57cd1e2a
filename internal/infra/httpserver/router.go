package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appai "github.com/bryanwahyu/cloudguard-sec/internal/application/ai"
	appscans "github.com/bryanwahyu/cloudguard-sec/internal/application/scans"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/faults"
	domain "github.com/bryanwahyu/cloudguard-sec/internal/domain/scans"
	"github.com/bryanwahyu/cloudguard-sec/internal/middleware"
)

type Router struct {
	scansSvc *appscans.Service
	aiSvc    *appai.Service
}

func NewRouter(scansSvc *appscans.Service, aiSvc *appai.Service) http.Handler {
	r := &Router{scansSvc: scansSvc, aiSvc: aiSvc}
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Post("/scans/run", r.wrap(r.handleRunScan))
		rt.Get("/scans/latest", r.wrap(r.handleLatest))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Get("/findings", r.wrap(r.handleFindings))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Post("/ai/analyze", r.wrap(r.handleAIAnalyze))
		rt.Get("/ai/analyze", r.wrap(r.handleAIAnalyzeList))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap mapping taxonomy error internal ke status HTTP per kind,
// bukan string-matching pesan.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		switch faults.KindOf(err) {
		case faults.KindRateLimit:
			var rl *faults.RateLimitExceeded
			if errors.As(err, &rl) {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfterSeconds)+1))
			}
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		case faults.KindConfiguration, faults.KindUnsupportedProvider:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case faults.KindDecryption:
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /v1/{tenant}/scans/run
// Body: {"account_id": "<id>"}. account_id kosong berarti semua account aktif
func (r *Router) handleRunScan(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenantID(tenant); err != nil {
		return faults.Configuration("%v", err)
	}

	var body struct {
		AccountID string `json:"account_id"`
	}
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return faults.Configuration("invalid request body: %v", err)
		}
	}
	if err := middleware.ValidateAccountID(body.AccountID); err != nil {
		return faults.Configuration("%v", err)
	}

	middleware.IncrementBatches()
	result, err := r.scansSvc.RunScan(req.Context(), tenant, body.AccountID)
	if err != nil {
		return err
	}
	middleware.AddAccountsScanned(result.AccountsProcessed)
	middleware.AddAccountsFailed(len(result.Errors))
	middleware.AddFindingsCreated(result.TotalFindings)

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(result)
}

// GET /v1/{tenant}/scans/latest?limit=
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = middleware.ValidateLimit(limit)

	list, err := r.scansSvc.Latest(req.Context(), tenant, limit)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{tenant}/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	scan, err := r.scansSvc.Get(req.Context(), tenant, domain.ScanID(id))
	if err != nil {
		return err
	}
	if scan == nil {
		return sql.ErrNoRows
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(scan)
}

// GET /v1/{tenant}/findings?page=&page_size=
func (r *Router) handleFindings(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.scansSvc.Findings(req.Context(), tenant, page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{tenant}/summary?days=
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.scansSvc.Summary(req.Context(), tenant, middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(summary)
}

// POST /v1/{tenant}/ai/analyze
// Body: {"scan_id": "<id>"}
func (r *Router) handleAIAnalyze(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		http.Error(w, "ai analyst not configured", http.StatusNotImplemented)
		return nil
	}
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		ScanID string `json:"scan_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.Configuration("invalid request body: %v", err)
	}
	if body.ScanID == "" {
		return faults.Configuration("scan_id is required")
	}

	// scan harus ada dulu sebelum dianalisis
	scan, err := r.scansSvc.Get(req.Context(), tenant, domain.ScanID(body.ScanID))
	if err != nil {
		return err
	}
	if scan == nil {
		return fmt.Errorf("scan not found: %s: %w", body.ScanID, sql.ErrNoRows)
	}

	a, err := r.aiSvc.AnalyzeScan(req.Context(), tenant, body.ScanID)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(a)
}

// GET /v1/{tenant}/ai/analyze?page=&page_size=
func (r *Router) handleAIAnalyzeList(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		http.Error(w, "ai analyst not configured", http.StatusNotImplemented)
		return nil
	}
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.aiSvc.ListAnalyses(req.Context(), tenant, page, size)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}
