package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/newsworthy/news-agent/internal/news"
	"github.com/newsworthy/news-agent/internal/progress"
	"github.com/newsworthy/news-agent/internal/registry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0).UTC()}
}

type fakeIDGen struct{}

func (fakeIDGen) NewID() (string, error) { return uuid.NewString(), nil }

type fakeSource struct {
	articles []news.Article
	err      error
}

func (s *fakeSource) Fetch(context.Context, news.SearchParams) ([]news.Article, error) {
	return s.articles, s.err
}

// fakeClassifier labels articles by a per-article result table and records
// how many calls ran at once.
type fakeClassifier struct {
	mu          sync.Mutex
	results     map[string]news.Classification
	errs        map[string]error
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func (c *fakeClassifier) Classify(_ context.Context, _ news.SearchParams, a news.Article) (news.Classification, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()

	if err, ok := c.errs[a.ID]; ok {
		return news.Classification{}, err
	}
	if cls, ok := c.results[a.ID]; ok {
		return cls, nil
	}
	return news.Classification{Relevance: news.RelevanceMid, Reasoning: "default"}, nil
}

type fakeStore struct {
	mu     sync.Mutex
	stored map[string]news.Aggregate
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{stored: make(map[string]news.Aggregate)}
}

func (s *fakeStore) Store(_ context.Context, jobID string, agg news.Aggregate) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[jobID] = agg
	return "local://" + jobID + ".json", nil
}

func (s *fakeStore) Retrieve(_ context.Context, jobID string) (news.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.stored[jobID]
	if !ok {
		return news.Aggregate{}, news.Errorf(news.KindNotFound, "no result for job %s", jobID)
	}
	return agg, nil
}

func (s *fakeStore) get(jobID string) (news.Aggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.stored[jobID]
	return agg, ok
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload.(map[string]any))
	return fmt.Sprintf("msg-%d", len(p.payloads)), nil
}

func (p *fakePublisher) published() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, len(p.payloads))
	copy(out, p.payloads)
	return out
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

func articles(n int) []news.Article {
	out := make([]news.Article, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, news.Article{
			ID:    fmt.Sprintf("art-%d", i),
			Title: fmt.Sprintf("Article %d", i),
			Link:  fmt.Sprintf("https://example.com/%d", i),
		})
	}
	return out
}

type harness struct {
	reg        *registry.Registry
	source     *fakeSource
	classifier *fakeClassifier
	store      *fakeStore
	publisher  *fakePublisher
	emitter    *captureEmitter
	orch       *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		reg:        registry.New(100, newFakeClock()),
		source:     &fakeSource{},
		classifier: &fakeClassifier{},
		store:      newFakeStore(),
		publisher:  &fakePublisher{},
		emitter:    &captureEmitter{},
	}
	h.orch = New(h.reg, h.source, h.classifier, h.store, h.publisher,
		h.emitter, newFakeClock(), fakeIDGen{}, cfg, nil)
	return h
}

func (h *harness) waitTerminal(t *testing.T, jobID string) news.Job {
	t.Helper()
	var job news.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.reg.Get(jobID)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	_, err := h.orch.Submit(context.Background(), news.SearchParams{})
	require.True(t, news.IsKind(err, news.KindValidation))
	require.Zero(t, h.reg.Len())
}

func TestPipelineCompletesAllArticles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{CompletionTopic: "job-events"})
	h.source.articles = articles(3)
	h.classifier.results = map[string]news.Classification{
		"art-0": {Relevance: news.RelevanceHigh, Reasoning: "on topic"},
		"art-1": {Relevance: news.RelevanceMid, Reasoning: "adjacent"},
		"art-2": {Relevance: news.RelevanceLow, Reasoning: "off topic"},
	}

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)

	job := h.waitTerminal(t, id)
	require.Equal(t, news.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.TotalExpected)
	require.Equal(t, 3, job.Processed)
	require.Equal(t, "local://"+id+".json", job.ResultRef)
	require.Empty(t, job.ErrorKind)

	agg, ok := h.store.get(id)
	require.True(t, ok)
	require.Equal(t, 3, agg.Summary.Total)
	require.Equal(t, 3, agg.Summary.Succeeded)
	require.Zero(t, agg.Summary.Failed)
	require.Equal(t, news.RelevanceHigh, agg.Articles[0].Relevance)
	require.Equal(t, news.RelevanceLow, agg.Articles[2].Relevance)

	require.Eventually(t, func() bool {
		return len(h.publisher.published()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "completed", h.publisher.published()[0]["status"])
}

func TestClassifierFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.source.articles = articles(3)
	h.classifier.errs = map[string]error{
		"art-1": news.Errorf(news.KindMalformedResponse, "no label in model output"),
	}

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)

	job := h.waitTerminal(t, id)
	require.Equal(t, news.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.Processed)

	agg, ok := h.store.get(id)
	require.True(t, ok)
	require.Equal(t, 2, agg.Summary.Succeeded)
	require.Equal(t, 1, agg.Summary.Failed)
	// Failed outcomes sort last and keep their error kind.
	last := agg.Articles[2]
	require.True(t, last.Failed())
	require.Equal(t, news.KindMalformedResponse, last.ErrorKind)
}

func TestAllClassificationsFailingStillCompletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.source.articles = articles(2)
	h.classifier.errs = map[string]error{
		"art-0": news.Errorf(news.KindUpstream, "model unavailable"),
		"art-1": news.Errorf(news.KindUpstream, "model unavailable"),
	}

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)

	job := h.waitTerminal(t, id)
	require.Equal(t, news.JobStatusCompleted, job.Status)

	agg, ok := h.store.get(id)
	require.True(t, ok)
	require.Zero(t, agg.Summary.Succeeded)
	require.Equal(t, 2, agg.Summary.Failed)
}

func TestSourceAuthFailureFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{CompletionTopic: "job-events"})
	h.source.err = news.Errorf(news.KindAuth, "newsdata rejected api key")

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)

	job := h.waitTerminal(t, id)
	require.Equal(t, news.JobStatusFailed, job.Status)
	require.Equal(t, news.KindAuth, job.ErrorKind)
	require.Zero(t, job.Processed)

	_, ok := h.store.get(id)
	require.False(t, ok)

	require.Eventually(t, func() bool {
		return len(h.publisher.published()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "failed", h.publisher.published()[0]["status"])
}

func TestZeroArticlesFailsWithNoResults(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.source.articles = nil

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "obscure"})
	require.NoError(t, err)

	job := h.waitTerminal(t, id)
	require.Equal(t, news.JobStatusFailed, job.Status)
	require.Equal(t, news.KindNoResults, job.ErrorKind)
}

func TestStoreFailureFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.source.articles = articles(2)
	h.store.err = fmt.Errorf("bucket unavailable")

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)

	job := h.waitTerminal(t, id)
	require.Equal(t, news.JobStatusFailed, job.Status)
	require.Equal(t, news.KindStorage, job.ErrorKind)
	require.Equal(t, 2, job.Processed)
}

func TestClassifyConcurrencyIsBounded(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ClassifyConcurrency: 2})
	h.source.articles = articles(10)
	h.classifier.delay = 10 * time.Millisecond

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)

	h.waitTerminal(t, id)
	require.LessOrEqual(t, h.classifier.maxInFlight, 2)
	require.Positive(t, h.classifier.maxInFlight)
}

func TestProgressNeverOvershootsOutcomes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ClassifyConcurrency: 4})
	h.source.articles = articles(20)
	h.classifier.delay = time.Millisecond

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		job, err := h.reg.Get(id)
		require.NoError(t, err)
		require.Equal(t, len(job.Outcomes), job.Processed)
		require.LessOrEqual(t, job.Processed, 20)
		if job.Status.Terminal() {
			require.Equal(t, 20, job.Processed)
			return
		}
		select {
		case <-deadline:
			t.Fatal("job never reached a terminal state")
		default:
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPipelineEmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.source.articles = articles(2)

	id, err := h.orch.Submit(context.Background(), news.SearchParams{Topic: "fusion"})
	require.NoError(t, err)
	h.waitTerminal(t, id)

	require.Eventually(t, func() bool {
		stages := h.emitter.stages()
		return len(stages) == 5 && stages[len(stages)-1] == progress.StageJobDone
	}, time.Second, 5*time.Millisecond)

	stages := h.emitter.stages()
	require.Equal(t, progress.StageJobStart, stages[0])
	require.Equal(t, progress.StageFetchDone, stages[1])
	counts := map[progress.Stage]int{}
	for _, s := range stages {
		counts[s]++
	}
	require.Equal(t, 2, counts[progress.StageClassifyDone])
}
