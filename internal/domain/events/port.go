package events

// Sink port untuk notifikasi fire-and-forget. Emit tidak boleh blocking dan
// tidak boleh return error. Delivery best-effort, orchestrator tidak
// menunggu konfirmasi.
type Sink interface {
	Emit(name string, payload any)
}

// NopSink buat test / deployment tanpa alerting
type NopSink struct{}

func (NopSink) Emit(string, any) {}
