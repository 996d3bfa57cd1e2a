package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	BatchesTotal       uint64
	AccountsScanned    uint64
	AccountsFailed     uint64
	FindingsCreated    uint64
	AlertsEmitted      uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementBatches increments scan batch counter
func IncrementBatches() {
	atomic.AddUint64(&globalMetrics.BatchesTotal, 1)
}

// AddAccountsScanned adds to the per-account scan counter
func AddAccountsScanned(n int) {
	atomic.AddUint64(&globalMetrics.AccountsScanned, uint64(n))
}

// AddAccountsFailed adds to the per-account failure counter
func AddAccountsFailed(n int) {
	atomic.AddUint64(&globalMetrics.AccountsFailed, uint64(n))
}

// AddFindingsCreated adds to the findings counter
func AddFindingsCreated(n int) {
	atomic.AddUint64(&globalMetrics.FindingsCreated, uint64(n))
}

// IncrementAlerts increments emitted alert counter
func IncrementAlerts() {
	atomic.AddUint64(&globalMetrics.AlertsEmitted, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"batches_total":        atomic.LoadUint64(&globalMetrics.BatchesTotal),
		"accounts_scanned":     atomic.LoadUint64(&globalMetrics.AccountsScanned),
		"accounts_failed":      atomic.LoadUint64(&globalMetrics.AccountsFailed),
		"findings_created":     atomic.LoadUint64(&globalMetrics.FindingsCreated),
		"alerts_emitted":       atomic.LoadUint64(&globalMetrics.AlertsEmitted),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
