package events

import (
	"context"
	"log"
	"sync"
	"time"
)

// Poster kirim satu event ke channel eksternal (webhook dsb)
type Poster interface {
	Post(ctx context.Context, name string, payload any) error
}

// Dispatcher implementasi events.Sink dengan bounded queue: Emit tidak
// pernah blocking. Kalau queue penuh event di-drop dengan log, karena
// delivery best-effort dan tidak boleh menunda persistence.
type Dispatcher struct {
	poster  Poster
	queue   chan envelope
	wg      sync.WaitGroup
	timeout time.Duration

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

type envelope struct {
	name    string
	payload any
}

func NewDispatcher(poster Poster, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		poster:  poster,
		queue:   make(chan envelope, queueSize),
		timeout: 10 * time.Second,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) Emit(name string, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Emit setelah Close tidak boleh panic karena send ke channel
	// yang sudah ditutup; event telat cukup di-drop dengan log.
	if d.closed {
		log.Printf("dispatcher closed, dropping event %s", name)
		return
	}
	select {
	case d.queue <- envelope{name: name, payload: payload}:
	default:
		log.Printf("event queue full, dropping event %s", name)
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.poster.Post(ctx, e.name, e.payload); err != nil {
			log.Printf("event delivery failed: name=%s err=%v", e.name, err)
		}
		cancel()
	}
}

// Close stop menerima event baru dan tunggu queue terkuras
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
}
