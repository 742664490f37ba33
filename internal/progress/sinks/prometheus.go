package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/newsworthy/news-agent/internal/progress"
)

// PrometheusSink exports pipeline progress metrics via Prometheus. It owns
// all collectors for jobs started/completed/running and per-label
// classification counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	articlesFetched prometheus.Counter
	classifications *prometheus.CounterVec
	relevanceTotal  *prometheus.CounterVec
	classifyLatency prometheus.Histogram

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsagent_jobs_started_total",
			Help: "Total jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsagent_jobs_completed_total",
			Help: "Total jobs finished partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newsagent_jobs_running",
			Help: "Current number of in-flight jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsagent_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		articlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsagent_articles_fetched_total",
			Help: "Articles returned by the news source across all jobs.",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsagent_classifications_total",
			Help: "Classification completions partitioned by result.",
		}, []string{"result"}),
		relevanceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsagent_relevance_total",
			Help: "Successful classifications partitioned by relevance label.",
		}, []string{"relevance"}),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsagent_classify_duration_seconds",
			Help:    "Latency of individual classifier calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.articlesFetched,
		s.classifications,
		s.relevanceTotal,
		s.classifyLatency,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart, progress.StageJobDone, progress.StageJobError:
		s.handleJobEvent(evt)
	case progress.StageFetchDone:
		s.articlesFetched.Add(float64(evt.Articles))
	case progress.StageClassifyDone:
		s.handleClassifyEvent(evt)
	}
}

func (s *PrometheusSink) handleJobEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("completed").Inc()
		s.observeRuntime(evt, "completed")
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("failed").Inc()
		s.observeRuntime(evt, "failed")
	}
	if evt.Stage != progress.StageJobStart && s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleClassifyEvent(evt progress.Event) {
	if evt.Failed {
		s.classifications.WithLabelValues("failed").Inc()
	} else {
		s.classifications.WithLabelValues("ok").Inc()
		s.relevanceTotal.WithLabelValues(evt.Relevance).Inc()
	}
	if evt.Dur > 0 {
		s.classifyLatency.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[[16]byte]struct{})}
}

func (t *jobTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
