// Package analytics holds the latest finished snapshot per instrument
// and serves it over HTTP. Readers always see a complete snapshot: the
// registry swaps whole values under a lock, never partial updates.
package analytics

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"crypto-analyzer/internal/model"
)

// Snapshot is the full analytics state for one instrument produced by
// one analysis run.
type Snapshot struct {
	Instrument string                                      `json:"instrument"`
	UpdatedAt  time.Time                                   `json:"updated_at"`
	Indicators map[model.Interval]model.IndicatorSnapshot  `json:"indicators"`
	Confluence *model.ConfluenceResult                     `json:"confluence,omitempty"`
	Patterns   []model.Pattern                             `json:"patterns"`
	Cycle      *model.CycleInfo                            `json:"cycle,omitempty"`
	Backtests  []model.BacktestResult                      `json:"backtests,omitempty"`
}

// Registry is the in-process source of truth for finished snapshots.
// An optional publisher mirrors each update to the cache layer,
// best-effort.
type Registry struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	publisher model.SnapshotPublisher

	// Optional hook, wired to metrics by the daemon.
	OnPublish func(d time.Duration)
}

func NewRegistry(publisher model.SnapshotPublisher) *Registry {
	return &Registry{
		snapshots: make(map[string]Snapshot),
		publisher: publisher,
	}
}

// Put replaces the instrument's snapshot atomically and mirrors it to
// the publisher. Publish failures are logged, never returned: the
// in-process copy is already current.
func (r *Registry) Put(ctx context.Context, snap Snapshot) {
	r.mu.Lock()
	r.snapshots[snap.Instrument] = snap
	r.mu.Unlock()

	r.publish(ctx, snap)
}

// Update applies fn to the instrument's snapshot under the registry
// lock and mirrors the result. Reports false when no snapshot exists
// yet; callers racing with a full Put lose nothing either way.
func (r *Registry) Update(ctx context.Context, instrument string, fn func(*Snapshot)) bool {
	r.mu.Lock()
	snap, ok := r.snapshots[instrument]
	if !ok {
		r.mu.Unlock()
		return false
	}
	fn(&snap)
	r.snapshots[instrument] = snap
	r.mu.Unlock()

	r.publish(ctx, snap)
	return true
}

func (r *Registry) publish(ctx context.Context, snap Snapshot) {
	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[analytics] marshal snapshot %s: %v", snap.Instrument, err)
		return
	}
	start := time.Now()
	if err := r.publisher.PublishAnalytics(ctx, snap.Instrument, payload); err != nil {
		log.Printf("[analytics] publish snapshot %s: %v", snap.Instrument, err)
		return
	}
	if r.OnPublish != nil {
		r.OnPublish(time.Since(start))
	}
}

// Get returns the latest snapshot for the instrument, if any.
func (r *Registry) Get(instrument string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snapshots[instrument]
	return snap, ok
}

// Instruments lists instruments with a snapshot, sorted.
func (r *Registry) Instruments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.snapshots))
	for inst := range r.snapshots {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}
