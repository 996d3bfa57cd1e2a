package faults

import (
	"errors"
	"fmt"
)

// Kind klasifikasi error supaya layer HTTP bisa mapping status code
// tanpa string-matching pesan error.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindDecryption          Kind = "decryption"
	KindUnsupportedProvider Kind = "unsupported_provider"
	KindProviderAPI         Kind = "provider_api"
	KindPersistence         Kind = "persistence"
	KindRateLimit           Kind = "rate_limit"
)

// Fault wraps an underlying error with a classification kind.
type Fault struct {
	Kind Kind
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// New bikin Fault dengan pesan format
func New(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap membungkus err yang sudah ada dengan kind
func Wrap(kind Kind, err error) *Fault {
	if err == nil {
		return nil
	}
	return &Fault{Kind: kind, Err: err}
}

// KindOf returns the classification of err, or "" when it carries none.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	var rl *RateLimitExceeded
	if errors.As(err, &rl) {
		return KindRateLimit
	}
	return ""
}

// RateLimitExceeded is typed separately because callers need the
// retry-after hint to schedule a deterministic backoff.
type RateLimitExceeded struct {
	Service           string
	AccountID         string
	RetryAfterSeconds float64
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s/%s, retry after %.1fs", e.Service, e.AccountID, e.RetryAfterSeconds)
}

// Convenience constructors, satu per kategori di taxonomy.

func Configuration(format string, args ...any) *Fault {
	return New(KindConfiguration, format, args...)
}

func Decryption(err error) *Fault { return Wrap(KindDecryption, err) }

func UnsupportedProvider(provider string) *Fault {
	return New(KindUnsupportedProvider, "provider not supported: %s", provider)
}

func ProviderAPI(err error) *Fault { return Wrap(KindProviderAPI, err) }

func Persistence(err error) *Fault { return Wrap(KindPersistence, err) }
