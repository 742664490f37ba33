package orchestrator

import (
	"sort"
	"time"

	"github.com/newsworthy/news-agent/internal/news"
)

// BuildAggregate assembles the final result record from per-article
// outcomes. Outcomes arrive in completion order, which depends on
// classifier latency; the aggregate is deterministic regardless, with
// successes ordered most relevant first and failures last.
func BuildAggregate(jobID, topic string, generatedAt time.Time, outcomes []news.Outcome) news.Aggregate {
	ordered := make([]news.Outcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Failed() != b.Failed() {
			return !a.Failed()
		}
		if a.Failed() {
			return a.Article.ID < b.Article.ID
		}
		if a.Relevance.Rank() != b.Relevance.Rank() {
			return a.Relevance.Rank() < b.Relevance.Rank()
		}
		return a.Article.ID < b.Article.ID
	})

	summary := news.Summary{
		Total:           len(ordered),
		RelevanceCounts: make(map[news.Relevance]int),
	}
	for _, o := range ordered {
		if o.Failed() {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		summary.RelevanceCounts[o.Relevance]++
	}

	return news.Aggregate{
		JobID:       jobID,
		Topic:       topic,
		GeneratedAt: generatedAt,
		Articles:    ordered,
		Summary:     summary,
	}
}
