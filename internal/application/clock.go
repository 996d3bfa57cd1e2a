package application

import "time"

// Clock sumber waktu yang diinject ke service. Timestamp scan, TTL cache,
// dan dedup window semua lewat sini supaya test bisa kontrol waktu.
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi produksi di atas time.Now
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
