package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pocos-map/pkg/database"
	"pocos-map/pkg/logger"
	"pocos-map/pkg/sheet"
	"pocos-map/pkg/wells"
)

// ErrEmptySheet marks a fetch that returned a header but no data rows. The
// dataset is still served; the page shows its "no data" notice.
var ErrEmptySheet = errors.New("sheet has no data rows")

// Fetcher loads the raw sheet. sheet.Source satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) (*sheet.Table, error)
}

// Store persists snapshots. *database.Database satisfies it.
type Store interface {
	SaveSnapshot(ctx context.Context, snap database.Snapshot, rows [][]string) error
	LoadLatest(ctx context.Context) (database.Snapshot, [][]string, error)
	PruneSnapshots(ctx context.Context, keep int) (int, error)
}

// Notifier forwards events outside the process, e.g. to a message broker.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Config wires a Poller. Only Source is required.
type Config struct {
	Source        Fetcher
	SourceName    string
	Store         Store
	Vocabulary    *wells.Vocabulary
	Interval      time.Duration
	KeepSnapshots int
	Bus           *Bus
	Notifier      Notifier
	Logf          func(string, ...any)

	now   func() time.Time
	newID func() string
}

// Poller refreshes the Holder from the sheet.
type Poller struct {
	cfg     Config
	holder  *Holder
	trigger chan chan Event
	digest  string
}

// NewPoller prepares a poller; nothing runs until Start or RunOnce.
func NewPoller(cfg Config, holder *Holder) *Poller {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.Vocabulary == nil {
		cfg.Vocabulary = wells.DefaultVocabulary()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.newID == nil {
		cfg.newID = uuid.NewString
	}
	if cfg.SourceName == "" {
		if s, ok := cfg.Source.(fmt.Stringer); ok {
			cfg.SourceName = s.String()
		}
	}
	return &Poller{cfg: cfg, holder: holder, trigger: make(chan chan Event)}
}

// Restore serves the newest stored snapshot so the dashboard has data
// before the first fetch completes, or while the sheet is unreachable.
func (p *Poller) Restore(ctx context.Context) (Event, error) {
	if p.cfg.Store == nil {
		return Event{}, database.ErrNoSnapshot
	}
	snap, rows, err := p.cfg.Store.LoadLatest(ctx)
	if err != nil {
		return Event{}, err
	}
	ds := wells.Normalize(snap.Header, rows, p.cfg.Vocabulary)
	p.digest = snap.Digest
	p.holder.Update(func(s State) State {
		if s.Loaded() {
			return s
		}
		return State{
			SnapshotID: snap.ID,
			Source:     snap.Source,
			FetchedAt:  snap.Time(),
			Dataset:    ds,
			Restored:   true,
		}
	})
	ev := Event{
		RunID:      p.cfg.newID(),
		Kind:       EventRestored,
		SnapshotID: snap.ID,
		Source:     snap.Source,
		Rows:       len(rows),
		At:         p.cfg.now(),
	}
	p.publish(ctx, ev)
	p.cfg.Logf("restored snapshot %s (%d rows, fetched %s)", snap.ID, len(rows), snap.Time().Format(time.RFC3339))
	return ev, nil
}

// RunOnce performs one fetch → normalize → persist → publish cycle. On
// failure the previously served data stays in place and only the error is
// recorded.
func (p *Poller) RunOnce(ctx context.Context) Event {
	runID := p.cfg.newID()
	started := p.cfg.now()
	logger.Begin(runID)
	logger.Appendf(runID, "fetch %s", p.cfg.SourceName)

	ev := Event{RunID: runID, Source: p.cfg.SourceName, At: started}

	tbl, err := p.cfg.Source.Fetch(ctx)
	if err != nil {
		ev.Kind = EventFailed
		ev.Error = err.Error()
		p.holder.Update(func(s State) State {
			s.CheckedAt = started
			s.LastError = err.Error()
			return s
		})
		logger.FlushError(runID, fmt.Errorf("refresh: %w", err))
		p.publish(ctx, ev)
		return ev
	}
	ev.Rows = len(tbl.Rows)
	logger.Appendf(runID, "fetched %d rows, %d columns", len(tbl.Rows), len(tbl.Header))

	digest := database.Digest(tbl.Header, tbl.Rows)
	if digest == p.digest {
		ev.Kind = EventUnchanged
		cur := p.holder.Update(func(s State) State {
			s.CheckedAt = started
			s.LastError = ""
			return s
		})
		ev.SnapshotID = cur.SnapshotID
		if cur.Loaded() {
			logger.Success(runID, fmt.Sprintf("unchanged (%d rows)", ev.Rows))
			p.publish(ctx, ev)
			return ev
		}
		// Nothing is served yet; store the data under the id about to be
		// published so its snapshot CSV resolves.
		ev.Kind = ""
		ev.SnapshotID = ""
	}

	ds := wells.Normalize(tbl.Header, tbl.Rows, p.cfg.Vocabulary)
	snapID := p.cfg.newID()
	if p.cfg.Store != nil {
		snap := database.Snapshot{
			ID:        snapID,
			Source:    p.cfg.SourceName,
			FetchedAt: started.UnixMilli(),
			Header:    tbl.Header,
			Digest:    digest,
		}
		if err := p.cfg.Store.SaveSnapshot(ctx, snap, tbl.Rows); err != nil {
			// The fresh data is still served; history just misses this run.
			logger.Appendf(runID, "persist snapshot failed: %v", err)
			p.cfg.Logf("refresh %s: persist snapshot: %v", runID, err)
		} else if p.cfg.KeepSnapshots > 0 {
			if n, err := p.cfg.Store.PruneSnapshots(ctx, p.cfg.KeepSnapshots); err != nil {
				p.cfg.Logf("refresh %s: prune snapshots: %v", runID, err)
			} else if n > 0 {
				logger.Appendf(runID, "pruned %d old snapshots", n)
			}
		}
	}
	p.digest = digest

	p.holder.Update(func(State) State {
		return State{
			SnapshotID: snapID,
			Source:     p.cfg.SourceName,
			FetchedAt:  started,
			CheckedAt:  started,
			Dataset:    ds,
		}
	})
	ev.Kind = EventRefreshed
	ev.SnapshotID = snapID
	if len(tbl.Rows) == 0 {
		ev.Error = ErrEmptySheet.Error()
	}
	logger.Success(runID, fmt.Sprintf("refreshed snapshot %s (%d rows)", snapID, ev.Rows))
	p.publish(ctx, ev)
	return ev
}

func (p *Poller) publish(ctx context.Context, ev Event) {
	if p.cfg.Bus != nil {
		p.cfg.Bus.Publish(ev)
	}
	if p.cfg.Notifier != nil {
		nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.cfg.Notifier.Notify(nctx, ev); err != nil {
			p.cfg.Logf("refresh notify: %v", err)
		}
	}
}

// Start fetches immediately and then every Interval until ctx ends. Trigger
// requests are served by the same goroutine so runs never overlap. The
// returned channel closes when the loop has exited.
func (p *Poller) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	interval := p.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	p.cfg.Logf("refresh poller start: source=%s interval=%s", p.cfg.SourceName, interval)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		p.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RunOnce(ctx)
			case reply := <-p.trigger:
				ev := p.RunOnce(ctx)
				ticker.Reset(interval)
				reply <- ev
			}
		}
	}()
	return done
}

// Trigger asks the running poller for an immediate refresh and waits for
// its outcome.
func (p *Poller) Trigger(ctx context.Context) (Event, error) {
	reply := make(chan Event, 1)
	select {
	case p.trigger <- reply:
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
	select {
	case ev := <-reply:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
