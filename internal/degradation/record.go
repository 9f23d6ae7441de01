package degradation

import (
	"fmt"
	"sync"

	"storagesim/internal/simerr"
)

// Entry is one point of a degradation history.
type Entry struct {
	Time       float64 `json:"time_s"`
	Increment  float64 `json:"increment"`
	Cumulative float64 `json:"cumulative"`
}

// Sink receives a storage's degradation history when its record is closed.
type Sink interface {
	WriteDegradation(storage string, history []Entry) error
}

// Record accumulates capacity loss for one storage. Cumulative loss never
// decreases.
type Record struct {
	mu         sync.Mutex
	storage    string
	cumulative float64
	history    []Entry
	sink       Sink
	closed     bool
}

// NewRecord creates an empty record; sink may be nil.
func NewRecord(storage string, sink Sink) *Record {
	return &Record{storage: storage, sink: sink}
}

// Add appends an increment. Negative increments are rejected.
func (r *Record) Add(time, increment float64) error {
	if increment < 0 {
		return simerr.Config("degradation", "increment", fmt.Sprintf("must be >= 0, got %g", increment))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cumulative += increment
	r.history = append(r.history, Entry{Time: time, Increment: increment, Cumulative: r.cumulative})
	return nil
}

// Cumulative returns the total loss as a fraction of nominal capacity.
func (r *Record) Cumulative() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cumulative
}

// History returns a copy of the recorded entries.
func (r *Record) History() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.history...)
}

// Close flushes the history to the sink once.
func (r *Record) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.sink == nil {
		return nil
	}
	if err := r.sink.WriteDegradation(r.storage, append([]Entry(nil), r.history...)); err != nil {
		return fmt.Errorf("flush degradation of %s: %w", r.storage, err)
	}
	return nil
}
