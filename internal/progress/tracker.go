package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/ttscraper/ttscraper-go/internal/domain"
)

// IndicatorSnapshot is a point-in-time view of one indicator
type IndicatorSnapshot struct {
	ID        int                   `json:"id"`
	Name      string                `json:"name"`
	State     domain.IndicatorState `json:"state"`
	Current   int64                 `json:"current"`
	Total     int64                 `json:"total"`
	Speed     float64               `json:"speed"`
	Note      string                `json:"note,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Snapshot is a point-in-time view of all live indicators
type Snapshot struct {
	Aggregate *IndicatorSnapshot  `json:"aggregate,omitempty"`
	Items     []IndicatorSnapshot `json:"items"`
	Created   int                 `json:"created"`
	Removed   int                 `json:"removed"`
}

// Tracker is an in-memory ProgressReporter exposing snapshots
type Tracker struct {
	mu        sync.RWMutex
	nextID    int
	aggregate *trackedIndicator
	items     map[int]*trackedIndicator
	created   int
	removed   int
	updates   int
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{items: make(map[int]*trackedIndicator)}
}

// CreateIndicator implements ProgressReporter
func (t *Tracker) CreateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	t.mu.Lock()
	defer t.mu.Unlock()

	ind := t.newIndicator(total, fields)
	t.items[ind.snap.ID] = ind
	t.created++
	return ind
}

// CreateAggregateIndicator implements ProgressReporter.
// A new aggregate replaces the previous one.
func (t *Tracker) CreateAggregateIndicator(total int64, fields domain.IndicatorFields) domain.Indicator {
	t.mu.Lock()
	defer t.mu.Unlock()

	ind := t.newIndicator(total, fields)
	ind.aggregate = true
	t.aggregate = ind
	return ind
}

func (t *Tracker) newIndicator(total int64, fields domain.IndicatorFields) *trackedIndicator {
	t.nextID++
	ind := &trackedIndicator{
		tracker: t,
		snap: IndicatorSnapshot{
			ID:        t.nextID,
			State:     domain.IndicatorActive,
			Total:     total,
			Speed:     -1,
			UpdatedAt: time.Now(),
		},
	}
	ind.apply(0, fields)
	return ind
}

// Stop implements ProgressReporter
func (t *Tracker) Stop() {}

// Snapshot returns a copy of the current state, items ordered by creation
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Items:   make([]IndicatorSnapshot, 0, len(t.items)),
		Created: t.created,
		Removed: t.removed,
	}
	if t.aggregate != nil {
		agg := t.aggregate.snap
		snap.Aggregate = &agg
	}
	for _, ind := range t.items {
		snap.Items = append(snap.Items, ind.snap)
	}
	sort.Slice(snap.Items, func(i, j int) bool {
		return snap.Items[i].ID < snap.Items[j].ID
	})
	return snap
}

// Updates returns the number of updates applied to item indicators
func (t *Tracker) Updates() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updates
}

type trackedIndicator struct {
	tracker   *Tracker
	snap      IndicatorSnapshot
	aggregate bool
	removed   bool
}

// apply merges fields into the snapshot, caller holds the tracker lock
func (ind *trackedIndicator) apply(current int64, fields domain.IndicatorFields) {
	ind.snap.Current = current
	if fields.Name != "" {
		ind.snap.Name = fields.Name
	}
	if fields.State != "" {
		ind.snap.State = fields.State
	}
	if fields.Total > 0 {
		ind.snap.Total = fields.Total
	}
	if fields.Speed != 0 {
		ind.snap.Speed = fields.Speed
	}
	if fields.Note != "" {
		ind.snap.Note = fields.Note
	}
	ind.snap.UpdatedAt = time.Now()
}

func (ind *trackedIndicator) Update(current int64, fields domain.IndicatorFields) {
	ind.tracker.mu.Lock()
	defer ind.tracker.mu.Unlock()

	if ind.removed {
		return
	}
	ind.apply(current, fields)
	if !ind.aggregate {
		ind.tracker.updates++
	}
}

func (ind *trackedIndicator) Remove() {
	ind.tracker.mu.Lock()
	defer ind.tracker.mu.Unlock()

	if ind.removed {
		return
	}
	ind.removed = true
	if ind.aggregate {
		// The final aggregate stays visible until the next run replaces it
		return
	}
	delete(ind.tracker.items, ind.snap.ID)
	ind.tracker.removed++
}
