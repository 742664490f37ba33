// Package memory implements an in-process result store for tests and
// single-node development runs.
package memory

import (
	"context"
	"sync"

	"github.com/newsworthy/news-agent/internal/news"
)

// Store keeps aggregates in a mutex-guarded map.
type Store struct {
	mu   sync.RWMutex
	aggs map[string]news.Aggregate
}

var _ news.ResultStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{aggs: make(map[string]news.Aggregate)}
}

// Store saves the aggregate and returns a mem:// reference.
func (s *Store) Store(_ context.Context, jobID string, agg news.Aggregate) (string, error) {
	if jobID == "" {
		return "", news.Errorf(news.KindStorage, "job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs[jobID] = agg
	return "mem://" + jobID, nil
}

// Retrieve returns a previously stored aggregate.
func (s *Store) Retrieve(_ context.Context, jobID string) (news.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggs[jobID]
	if !ok {
		return news.Aggregate{}, news.Errorf(news.KindNotFound, "no result for job %s", jobID)
	}
	return agg, nil
}

// Len reports how many aggregates are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aggs)
}
