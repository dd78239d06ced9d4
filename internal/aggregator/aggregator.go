package aggregator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/recorder"
	"github.com/Kaushals112/shadow-aiims-defender/internal/session"
)

// Aggregator is the read-only query layer over the event log and the
// session store, consumed by the monitoring surface. It never mutates, and
// it sees every event recorded before the call returns (the primary store
// append is synchronous).
type Aggregator struct {
	store   recorder.EventStore
	tracker *session.Tracker
}

// New creates an aggregator over the recorder's primary store and the
// session tracker.
func New(store recorder.EventStore, tracker *session.Tracker) *Aggregator {
	return &Aggregator{store: store, tracker: tracker}
}

// EventsForSession returns the session's events in insertion order.
func (a *Aggregator) EventsForSession(ctx context.Context, sessionID string) ([]models.AttackEvent, error) {
	return a.store.EventsForSession(ctx, sessionID)
}

// EventsByKind returns all events of one kind.
func (a *Aggregator) EventsByKind(ctx context.Context, kind models.EventKind) ([]models.AttackEvent, error) {
	return a.store.EventsByKind(ctx, kind)
}

// Events returns the full log in insertion order.
func (a *Aggregator) Events(ctx context.Context) ([]models.AttackEvent, error) {
	return a.store.All(ctx)
}

// ActiveSessions returns sessions still active. The polling "session count"
// indicator on the monitoring surface is fed from this.
func (a *Aggregator) ActiveSessions(_ time.Time) []models.SessionRecord {
	return a.tracker.Active()
}

// Sessions returns every tracked session.
func (a *Aggregator) Sessions() []models.SessionRecord {
	return a.tracker.All()
}

// SeverityOf maps an event to its triage bucket.
func (a *Aggregator) SeverityOf(event models.AttackEvent) models.Severity {
	return models.SeverityOf(event.EventKind)
}

// Snapshot is the dashboard summary: totals, severity breakdown, per-kind
// counts, and the active session count.
type Snapshot struct {
	TotalEvents    int                      `json:"total_events"`
	BySeverity     map[models.Severity]int  `json:"by_severity"`
	ByKind         map[models.EventKind]int `json:"by_kind"`
	ActiveSessions int                      `json:"active_sessions"`
	TotalSessions  int                      `json:"total_sessions"`
	GeneratedAt    time.Time                `json:"generated_at"`
}

// Snapshot gathers the event tallies and the session tallies concurrently.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		BySeverity:  map[models.Severity]int{},
		ByKind:      map[models.EventKind]int{},
		GeneratedAt: time.Now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := a.store.All(gctx)
		if err != nil {
			return err
		}
		snap.TotalEvents = len(events)
		for _, e := range events {
			snap.BySeverity[models.SeverityOf(e.EventKind)]++
			snap.ByKind[e.EventKind]++
		}
		return nil
	})
	g.Go(func() error {
		snap.ActiveSessions = len(a.tracker.Active())
		snap.TotalSessions = len(a.tracker.All())
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
