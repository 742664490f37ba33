// Package news defines core types shared across subsystems.
package news

import (
	"time"
)

// JobStatus represents the lifecycle state of a search job.
type JobStatus string

// Job status values tracked by the registry.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SearchParams captures the query a client submitted. Params are immutable
// once a job is created.
type SearchParams struct {
	Topic       string `json:"topic"`
	Language    string `json:"language,omitempty"`
	Country     string `json:"country,omitempty"`
	Category    string `json:"category,omitempty"`
	ExtraTopics string `json:"extra_topics,omitempty"`
}

// Article is one raw record returned by the source adapter.
type Article struct {
	ID          string   `json:"article_id"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description,omitempty"`
	SourceName  string   `json:"source_name,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// Relevance is the label assigned by the classifier.
type Relevance string

// Relevance labels, ordered from strongest to weakest match.
const (
	RelevanceHigh Relevance = "Very Relevant"
	RelevanceMid  Relevance = "Relevant"
	RelevanceLow  Relevance = "Not Relevant"
)

// Rank orders labels for result sorting; unknown labels sort last.
func (r Relevance) Rank() int {
	switch r {
	case RelevanceHigh:
		return 0
	case RelevanceMid:
		return 1
	case RelevanceLow:
		return 2
	default:
		return 3
	}
}

// Classification is the result of one successful classifier call.
type Classification struct {
	Relevance Relevance `json:"relevance"`
	Reasoning string    `json:"reasoning"`
}

// Outcome records the processing result for one article: either a
// classification or a per-article failure. Immutable once appended to a job.
type Outcome struct {
	Article   Article   `json:"article"`
	Relevance Relevance `json:"relevance,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Failed reports whether this outcome records a per-article failure.
func (o Outcome) Failed() bool {
	return o.Error != ""
}

// Summary holds order-insensitive counts over a job's outcomes.
type Summary struct {
	Total           int               `json:"total"`
	Succeeded       int               `json:"succeeded"`
	Failed          int               `json:"failed"`
	RelevanceCounts map[Relevance]int `json:"relevance_counts"`
}

// Aggregate is the final combined result persisted for a completed job.
type Aggregate struct {
	JobID       string    `json:"job_id"`
	Topic       string    `json:"topic"`
	GeneratedAt time.Time `json:"generated_at"`
	Articles    []Outcome `json:"articles"`
	Summary     Summary   `json:"summary"`
}

// Job is the record tracked for each submitted search. Snapshots handed out
// by the registry are value copies; the orchestrator owning the job is the
// only writer.
type Job struct {
	ID            string       `json:"id"`
	Status        JobStatus    `json:"status"`
	Params        SearchParams `json:"params"`
	TotalExpected int          `json:"total_articles_expected"`
	Processed     int          `json:"articles_processed"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Outcomes      []Outcome    `json:"-"`
	ResultRef     string       `json:"result_ref,omitempty"`
	ErrorKind     ErrorKind    `json:"error_kind,omitempty"`
	ErrorDetail   string       `json:"error,omitempty"`
}

// JobSummary is the shape returned by job listings.
type JobSummary struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	Topic         string    `json:"topic"`
	TotalExpected int       `json:"total_articles_expected"`
	Processed     int       `json:"articles_processed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summarize projects a job onto its listing shape.
func (j Job) Summarize() JobSummary {
	return JobSummary{
		ID:            j.ID,
		Status:        j.Status,
		Topic:         j.Params.Topic,
		TotalExpected: j.TotalExpected,
		Processed:     j.Processed,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}
