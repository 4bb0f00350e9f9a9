package engine

import (
	"sync"
	"time"
)

// Phase is the coarse state of a sync run.
type Phase string

const (
	// PhaseDiscovery covers the changed-dates query and task enqueue.
	PhaseDiscovery Phase = "discovery"
	// PhasePopulate covers the task-queue drain.
	PhasePopulate Phase = "populate"
	// PhaseComplete is a finished run (tasks may still have failed).
	PhaseComplete Phase = "complete"
	// PhaseError is a run that aborted before completing.
	PhaseError Phase = "error"
)

// Progress is a point-in-time snapshot of one sync run.
type Progress struct {
	SyncID   string `json:"syncId"`
	APIKeyID string `json:"apiKeyId"`
	Phase    Phase  `json:"phase"`

	DatesFound     int    `json:"datesFound"`
	TasksTotal     int    `json:"tasksTotal"`
	TasksCompleted int    `json:"tasksCompleted"`
	TasksFailed    int    `json:"tasksFailed"`
	RecordsWritten int64  `json:"recordsWritten"`
	Highwatermark  uint64 `json:"highwatermark"`

	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registry keeps progress snapshots queryable for a TTL after the run ends,
// so a status poll shortly after completion still gets an answer.
type Registry struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]*registryEntry
}

type registryEntry struct {
	progress Progress
	done     bool
	doneAt   time.Time
}

// NewRegistry creates a registry with the given retention for finished runs.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{ttl: ttl, m: make(map[string]*registryEntry)}
}

// Update stores the latest snapshot for a run.
func (r *Registry) Update(p Progress) {
	p.UpdatedAt = time.Now().UTC()
	done := p.Phase == PhaseComplete || p.Phase == PhaseError

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	entry := r.m[p.SyncID]
	if entry == nil {
		entry = &registryEntry{}
		r.m[p.SyncID] = entry
	}
	entry.progress = p
	if done && !entry.done {
		entry.done = true
		entry.doneAt = time.Now()
	}
}

// Get returns the snapshot for a sync id, if still retained.
func (r *Registry) Get(syncID string) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	entry, ok := r.m[syncID]
	if !ok {
		return Progress{}, false
	}
	return entry.progress, true
}

// Active returns snapshots of all runs that have not finished yet.
func (r *Registry) Active() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	var out []Progress
	for _, entry := range r.m {
		if !entry.done {
			out = append(out, entry.progress)
		}
	}
	return out
}

func (r *Registry) sweepLocked() {
	cutoff := time.Now().Add(-r.ttl)
	for id, entry := range r.m {
		if entry.done && entry.doneAt.Before(cutoff) {
			delete(r.m, id)
		}
	}
}
