package scans

import (
	"fmt"
	"time"
)

// ID tipe untuk Scan
type ScanID string

// Status enum, lifecycle satu arah: running -> completed | failed
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add akumulasi counts lain ke receiver
func (c *SeverityCounts) Add(other SeverityCounts) {
	c.Critical += other.Critical
	c.High += other.High
	c.Medium += other.Medium
	c.Low += other.Low
	c.Total += other.Total
}

// Aggregate Root: Scan, satu eksekusi scan terhadap satu cloud account.
type Scan struct {
	ID             ScanID         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	CloudAccountID string         `json:"cloud_account_id"`
	Provider       string         `json:"provider"`
	Status         Status         `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Counts         SeverityCounts `json:"counts"`
	Error          string         `json:"error,omitempty"`
	ReportURL      string         `json:"report_url,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}

// Transition pindah status sesuai state machine. Running satu-satunya initial
// state; completed/failed terminal, tidak boleh transisi lagi.
func (s *Scan) Transition(to Status, at time.Time) error {
	if s.Status.Terminal() {
		return fmt.Errorf("scan %s already %s, cannot transition to %s", s.ID, s.Status, to)
	}
	if s.Status != StatusRunning {
		return fmt.Errorf("scan %s in unknown status %q", s.ID, s.Status)
	}
	if to != StatusCompleted && to != StatusFailed {
		return fmt.Errorf("invalid transition target %q for scan %s", to, s.ID)
	}
	s.Status = to
	s.CompletedAt = &at
	s.DurationMS = at.Sub(s.StartedAt).Milliseconds()
	return nil
}
