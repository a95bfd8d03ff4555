package refresh

import (
	"context"
	"time"
)

// Event kinds published after each refresh attempt.
const (
	EventRefreshed = "refreshed" // new data served
	EventUnchanged = "unchanged" // fetch succeeded, content identical
	EventFailed    = "failed"    // fetch failed, previous data kept
	EventRestored  = "restored"  // data loaded from stored history
)

// Event describes the outcome of one refresh attempt.
type Event struct {
	RunID      string    `json:"runId"`
	Kind       string    `json:"kind"`
	SnapshotID string    `json:"snapshotId,omitempty"`
	Source     string    `json:"source"`
	Rows       int       `json:"rows"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

// Bus fans refresh events out to subscribers without locks. Slow listeners
// miss events rather than stalling the poller.
type Bus struct {
	publish     chan Event
	subscribe   chan chan Event
	unsubscribe chan chan Event
	quit        chan struct{}
	done        chan struct{}
}

// NewBus starts the broadcaster goroutine.
func NewBus(buffer int) *Bus {
	b := &Bus{
		publish:     make(chan Event, buffer),
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish forwards an event to every listener. It never blocks.
func (b *Bus) Publish(ev Event) {
	select {
	case b.publish <- ev:
	default:
	}
}

// Subscribe registers a listener. The returned channel closes when ctx ends
// or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	select {
	case b.subscribe <- ch:
	case <-b.quit:
		close(ch)
		return ch
	}

	go func() {
		select {
		case <-ctx.Done():
			select {
			case b.unsubscribe <- ch:
			case <-b.done:
			}
		case <-b.done:
		}
	}()
	return ch
}

// Close stops the broadcaster and closes every subscriber channel.
func (b *Bus) Close() {
	select {
	case <-b.quit:
		return
	default:
	}
	close(b.quit)
	<-b.done
}

func (b *Bus) run() {
	listeners := make(map[chan Event]struct{})
	defer func() {
		for ch := range listeners {
			close(ch)
		}
		close(b.done)
	}()

	for {
		select {
		case <-b.quit:
			return
		case ch := <-b.subscribe:
			listeners[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			if _, ok := listeners[ch]; ok {
				delete(listeners, ch)
				close(ch)
			}
		case ev := <-b.publish:
			for ch := range listeners {
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}
