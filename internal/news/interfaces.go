package news

import (
	"context"
	"time"
)

// Source fetches one page of raw articles matching the search parameters.
// Failures must be classified (auth, rate_limited, upstream) so the
// orchestrator can surface them distinctly.
type Source interface {
	Fetch(ctx context.Context, params SearchParams) ([]Article, error)
}

// Classifier labels a single article's relevance to the search topic. It
// must be safe to call concurrently for distinct articles. A malformed
// model response is a recoverable per-article failure, not pipeline-fatal.
type Classifier interface {
	Classify(ctx context.Context, params SearchParams, article Article) (Classification, error)
}

// ResultStore persists finished aggregates keyed by job id and serves them
// back. Store returns a storage reference for the written record.
type ResultStore interface {
	Store(ctx context.Context, jobID string, agg Aggregate) (string, error)
	Retrieve(ctx context.Context, jobID string) (Aggregate, error)
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
