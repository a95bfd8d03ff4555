// Package refresh keeps the dashboard's current dataset up to date. A poller
// fetches the sheet on an interval or on demand, persists every change as a
// snapshot and publishes the outcome to live subscribers.
package refresh

import (
	"time"

	"pocos-map/pkg/wells"
)

// State is what the dashboard currently serves.
type State struct {
	SnapshotID string
	Source     string
	FetchedAt  time.Time // when the served data was fetched
	CheckedAt  time.Time // last fetch attempt, successful or not
	Dataset    *wells.Dataset
	// Restored is true while the data comes from the stored history rather
	// than from a fetch made by this process.
	Restored  bool
	LastError string
}

// Loaded reports whether any dataset is available.
func (s State) Loaded() bool { return s.Dataset != nil }

// Holder owns the current State inside one goroutine; readers and writers
// talk to it over channels.
type Holder struct {
	get    chan chan State
	update chan holderUpdate
	quit   chan struct{}
}

type holderUpdate struct {
	fn    func(State) State
	reply chan State
}

// NewHolder starts the owning goroutine. Call Close to stop it.
func NewHolder() *Holder {
	h := &Holder{
		get:    make(chan chan State),
		update: make(chan holderUpdate),
		quit:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Holder) loop() {
	var cur State
	for {
		select {
		case <-h.quit:
			return
		case reply := <-h.get:
			reply <- cur
		case u := <-h.update:
			cur = u.fn(cur)
			u.reply <- cur
		}
	}
}

// Current returns a copy of the state. After Close it returns the zero State.
func (h *Holder) Current() State {
	reply := make(chan State, 1)
	select {
	case h.get <- reply:
		return <-reply
	case <-h.quit:
		return State{}
	}
}

// Update applies fn to the state atomically and returns the result.
func (h *Holder) Update(fn func(State) State) State {
	u := holderUpdate{fn: fn, reply: make(chan State, 1)}
	select {
	case h.update <- u:
		return <-u.reply
	case <-h.quit:
		return State{}
	}
}

// Close stops the goroutine. Safe to call more than once.
func (h *Holder) Close() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
}
