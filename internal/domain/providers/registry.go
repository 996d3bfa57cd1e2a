package providers

import (
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/faults"
)

// Registry manages the set of registered provider scanners.
type Registry struct {
	scanners map[Provider]Scanner
}

func NewRegistry() *Registry {
	return &Registry{scanners: make(map[Provider]Scanner)}
}

// Register daftar scanner untuk provider-nya. Registrasi terakhir menang.
func (r *Registry) Register(s Scanner) {
	r.scanners[s.Provider()] = s
}

// Resolve cari scanner untuk nama provider dari account record.
// Provider tidak dikenal = per-account error, bukan fatal.
func (r *Registry) Resolve(name string) (Scanner, error) {
	p, ok := Parse(name)
	if !ok {
		return nil, faults.UnsupportedProvider(name)
	}
	s, ok := r.scanners[p]
	if !ok {
		return nil, faults.UnsupportedProvider(name)
	}
	return s, nil
}

// Providers daftar provider yang terdaftar
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.scanners))
	for p := range r.scanners {
		out = append(out, p)
	}
	return out
}
