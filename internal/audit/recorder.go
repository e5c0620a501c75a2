package audit

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"mapsync/internal/server"
)

// DefaultBufferSize is the number of events a Recorder holds before it
// starts dropping.
const DefaultBufferSize = 1024

// Recorder is a server.Journal that hands changes to a single writer
// goroutine. Record never blocks; when the buffer is full the change is
// dropped and a warning is logged.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	events chan Event

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	recorded atomic.Int64
	dropped  atomic.Int64
}

var _ server.Journal = (*Recorder)(nil)

// NewRecorder starts a recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		events: make(chan Event, bufferSize),
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// Record implements server.Journal.
func (r *Recorder) Record(c server.Change) {
	ev := EventFromChange(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("journal buffer full, dropping change",
			"sync_id", ev.SyncID, "user", ev.User, "entry", ev.Entry)
	}
}

func (r *Recorder) writer() {
	defer r.wg.Done()
	for ev := range r.events {
		if _, err := r.store.Record(ev); err != nil {
			r.logger.Error("failed to journal change", "sync_id", ev.SyncID, "error", err)
			continue
		}
		r.recorded.Add(1)
	}
}

// Close stops accepting changes and waits until the buffered ones are
// written. It does not close the store.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	r.wg.Wait()
}

// Recorded returns the number of changes written so far.
func (r *Recorder) Recorded() int64 { return r.recorded.Load() }

// Dropped returns the number of changes discarded on overflow.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }
