// Package registry holds the process-wide job map. Each job is published as
// an immutable snapshot; writers for distinct jobs never contend.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/newsworthy/news-agent/internal/news"
)

// DefaultMaxJobs bounds retention when no explicit limit is configured.
const DefaultMaxJobs = 100

// Registry maps job ids to records. Reads load the current snapshot without
// touching the per-job write lock, so pollers never observe a partially
// applied mutation.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []*entry
	maxJobs int
	clock   news.Clock
}

type entry struct {
	id        string
	createdAt time.Time

	// writeMu serializes all mutations of this one job; the snapshot
	// pointer is swapped only while it is held.
	writeMu sync.Mutex
	snap    atomic.Pointer[news.Job]
}

// New constructs a Registry with the given retention bound.
func New(maxJobs int, clock news.Clock) *Registry {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &Registry{
		entries: make(map[string]*entry),
		maxJobs: maxJobs,
		clock:   clock,
	}
}

// Create registers a new pending job for the given params and returns its
// initial snapshot. Creating a duplicate id is an error.
func (r *Registry) Create(id string, params news.SearchParams) (news.Job, error) {
	now := r.clock.Now()
	job := news.Job{
		ID:        id,
		Status:    news.JobStatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return job, r.insert(job)
}

// Seed registers an already-finished job, used to reload persisted results
// at startup. Non-terminal jobs are rejected.
func (r *Registry) Seed(job news.Job) error {
	if !job.Status.Terminal() {
		return news.Errorf(news.KindValidation, "seed requires a terminal job, got %q", job.Status)
	}
	return r.insert(job)
}

func (r *Registry) insert(job news.Job) error {
	e := &entry{id: job.ID, createdAt: job.CreatedAt}
	snap := cloneJob(job)
	e.snap.Store(&snap)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[job.ID]; exists {
		return news.Errorf(news.KindValidation, "job %s already exists", job.ID)
	}
	r.entries[job.ID] = e
	r.insertOrderedLocked(e)
	r.evictLocked()
	return nil
}

// insertOrderedLocked keeps order sorted by creation time ascending. New
// jobs almost always append; seeded jobs may land in the middle.
func (r *Registry) insertOrderedLocked(e *entry) {
	i := len(r.order)
	for i > 0 && r.order[i-1].createdAt.After(e.createdAt) {
		i--
	}
	r.order = append(r.order, nil)
	copy(r.order[i+1:], r.order[i:])
	r.order[i] = e
}

// evictLocked drops the oldest evictable jobs beyond the retention bound.
// A job that has not reached a terminal state is never evicted.
func (r *Registry) evictLocked() {
	excess := len(r.order) - r.maxJobs
	if excess <= 0 {
		return
	}
	kept := r.order[:0]
	for _, e := range r.order {
		if excess > 0 && e.snap.Load().Status.Terminal() {
			delete(r.entries, e.id)
			excess--
			continue
		}
		kept = append(kept, e)
	}
	r.order = kept
}

// Get returns the current snapshot for the job.
func (r *Registry) Get(id string) (news.Job, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return news.Job{}, news.Errorf(news.KindNotFound, "job %s not found", id)
	}
	return *e.snap.Load(), nil
}

// Update applies fn to a copy of the job's current state and publishes the
// result atomically. Mutations of terminal jobs are rejected; UpdatedAt is
// bumped on every successful mutation and never moves backwards.
func (r *Registry) Update(id string, fn func(*news.Job) error) (news.Job, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return news.Job{}, news.Errorf(news.KindNotFound, "job %s not found", id)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.snap.Load()
	if cur.Status.Terminal() {
		return news.Job{}, news.Errorf(news.KindValidation, "job %s is %s and cannot be mutated", id, cur.Status)
	}
	next := cloneJob(*cur)
	if err := fn(&next); err != nil {
		return news.Job{}, err
	}
	next.UpdatedAt = laterOf(r.clock.Now(), cur.UpdatedAt)
	e.snap.Store(&next)
	return next, nil
}

// List returns up to limit job summaries, most recently created first.
func (r *Registry) List(limit int) []news.JobSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.order) {
		limit = len(r.order)
	}
	out := make([]news.JobSummary, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.order[i].snap.Load().Summarize())
	}
	return out
}

// Len reports the number of retained jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// cloneJob copies the outcome slice into a fresh backing array so published
// snapshots are never mutated through a later append.
func cloneJob(j news.Job) news.Job {
	if len(j.Outcomes) > 0 {
		outcomes := make([]news.Outcome, len(j.Outcomes))
		copy(outcomes, j.Outcomes)
		j.Outcomes = outcomes
	}
	return j
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
