// Package orchestrator drives search jobs through the fetch, classify,
// aggregate, and persist stages.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsworthy/news-agent/internal/news"
	"github.com/newsworthy/news-agent/internal/progress"
	"github.com/newsworthy/news-agent/internal/registry"
)

// Config controls Orchestrator behavior.
type Config struct {
	// ClassifyConcurrency caps simultaneous in-flight classifier calls
	// per job.
	ClassifyConcurrency int
	FetchTimeout        time.Duration
	ClassifyTimeout     time.Duration
	StoreTimeout        time.Duration
	// CompletionTopic, when set, receives one event per terminal job.
	CompletionTopic string
}

const (
	defaultClassifyConcurrency = 4
	defaultFetchTimeout        = 30 * time.Second
	defaultClassifyTimeout     = 60 * time.Second
	defaultStoreTimeout        = 15 * time.Second
)

// Orchestrator owns the lifecycle of every job it creates: it is the only
// writer of a job's registry record. Submission returns immediately; the
// pipeline runs on its own goroutine decoupled from the request that
// created it.
type Orchestrator struct {
	registry   *registry.Registry
	source     news.Source
	classifier news.Classifier
	results    news.ResultStore
	publisher  news.Publisher
	emitter    progress.Emitter
	clock      news.Clock
	idGen      news.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator.
func New(
	reg *registry.Registry,
	source news.Source,
	classifier news.Classifier,
	results news.ResultStore,
	publisher news.Publisher,
	emitter progress.Emitter,
	clock news.Clock,
	idGen news.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.ClassifyConcurrency <= 0 {
		cfg.ClassifyConcurrency = defaultClassifyConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = defaultClassifyTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:   reg,
		source:     source,
		classifier: classifier,
		results:    results,
		publisher:  publisher,
		emitter:    emitter,
		clock:      clock,
		idGen:      idGen,
		cfg:        cfg,
		logger:     logger,
	}
}

// Submit validates the request, creates a pending job, and spawns the
// pipeline. It returns the job id without waiting for fetch or
// classification; a validation failure creates no job at all.
func (o *Orchestrator) Submit(_ context.Context, params news.SearchParams) (string, error) {
	if err := news.ValidateParams(params); err != nil {
		return "", err
	}
	id, err := o.idGen.NewID()
	if err != nil {
		return "", news.NewError(news.KindStorage, "generate job id", err)
	}
	if _, err := o.registry.Create(id, params); err != nil {
		return "", err
	}
	go o.run(id, params)
	return id, nil
}

// run executes the pipeline for one job. The job outlives the submitting
// request, so the pipeline runs under a background context and relies on
// per-call timeouts.
func (o *Orchestrator) run(jobID string, params news.SearchParams) {
	ctx := context.Background()
	start := o.clock.Now()
	evtID := eventID(jobID)
	o.emitter.Emit(progress.Event{JobID: evtID, TS: start, Stage: progress.StageJobStart, Topic: params.Topic})
	o.logger.Info("job started", zap.String("job_id", jobID), zap.String("topic", params.Topic))

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	articles, err := o.source.Fetch(fetchCtx, params)
	cancel()
	if err != nil {
		o.fail(ctx, jobID, start, err)
		return
	}
	if len(articles) == 0 {
		o.fail(ctx, jobID, start, news.Errorf(news.KindNoResults, "no articles found for topic %q", params.Topic))
		return
	}

	if _, err := o.registry.Update(jobID, func(j *news.Job) error {
		j.TotalExpected = len(articles)
		j.Status = news.JobStatusRunning
		return nil
	}); err != nil {
		o.logger.Error("transition to running failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	o.emitter.Emit(progress.Event{
		JobID:    evtID,
		TS:       o.clock.Now(),
		Stage:    progress.StageFetchDone,
		Topic:    params.Topic,
		Articles: int64(len(articles)),
	})

	o.classifyAll(ctx, jobID, evtID, params, articles)

	job, err := o.registry.Get(jobID)
	if err != nil {
		o.logger.Error("job vanished before aggregation", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	agg := BuildAggregate(jobID, params.Topic, o.clock.Now(), job.Outcomes)

	storeCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	ref, err := o.results.Store(storeCtx, jobID, agg)
	cancel()
	if err != nil {
		o.fail(ctx, jobID, start, news.NewError(news.KindStorage, "persist aggregate", err))
		return
	}

	job, err = o.registry.Update(jobID, func(j *news.Job) error {
		j.Status = news.JobStatusCompleted
		j.ResultRef = ref
		return nil
	})
	if err != nil {
		o.logger.Error("completion transition failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	dur := o.clock.Now().Sub(start)
	o.emitter.Emit(progress.Event{
		JobID:    evtID,
		TS:       o.clock.Now(),
		Stage:    progress.StageJobDone,
		Topic:    params.Topic,
		Articles: int64(job.Processed),
		Dur:      dur,
	})
	o.logger.Info("job completed",
		zap.String("job_id", jobID),
		zap.Int("articles", job.Processed),
		zap.Int("failures", agg.Summary.Failed),
		zap.Duration("dur", dur),
	)
	o.publishTerminal(ctx, job)
}

// classifyAll fans classification out across the fetched articles with a
// bounded number of in-flight calls, and blocks until every article has a
// recorded outcome. Each append and its counter increment are applied in a
// single registry mutation so pollers never see one without the other.
func (o *Orchestrator) classifyAll(
	ctx context.Context,
	jobID string,
	evtID [16]byte,
	params news.SearchParams,
	articles []news.Article,
) {
	sem := make(chan struct{}, o.cfg.ClassifyConcurrency)
	var wg sync.WaitGroup
	for _, article := range articles {
		wg.Add(1)
		go func(article news.Article) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			started := o.clock.Now()
			classifyCtx, cancel := context.WithTimeout(ctx, o.cfg.ClassifyTimeout)
			cls, err := o.classifier.Classify(classifyCtx, params, article)
			cancel()

			outcome := news.Outcome{Article: article}
			if err != nil {
				outcome.ErrorKind = news.KindOf(err)
				outcome.Error = news.Detail(err)
			} else {
				outcome.Relevance = cls.Relevance
				outcome.Reasoning = cls.Reasoning
			}

			if _, err := o.registry.Update(jobID, func(j *news.Job) error {
				j.Outcomes = append(j.Outcomes, outcome)
				j.Processed++
				return nil
			}); err != nil {
				o.logger.Error("record outcome failed",
					zap.String("job_id", jobID),
					zap.String("article_id", article.ID),
					zap.Error(err),
				)
				return
			}
			o.emitter.Emit(progress.Event{
				JobID:     evtID,
				TS:        o.clock.Now(),
				Stage:     progress.StageClassifyDone,
				Topic:     params.Topic,
				Relevance: string(outcome.Relevance),
				Failed:    outcome.Failed(),
				Dur:       o.clock.Now().Sub(started),
				Note:      outcome.Error,
			})
		}(article)
	}
	wg.Wait()
}

// fail moves the job to its failed terminal state with the error's kind.
func (o *Orchestrator) fail(ctx context.Context, jobID string, start time.Time, cause error) {
	job, err := o.registry.Update(jobID, func(j *news.Job) error {
		j.Status = news.JobStatusFailed
		j.ErrorKind = news.KindOf(cause)
		j.ErrorDetail = news.Detail(cause)
		return nil
	})
	if err != nil {
		o.logger.Error("failure transition failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	o.emitter.Emit(progress.Event{
		JobID: eventID(jobID),
		TS:    o.clock.Now(),
		Stage: progress.StageJobError,
		Topic: job.Params.Topic,
		Dur:   o.clock.Now().Sub(start),
		Note:  job.ErrorDetail,
	})
	o.logger.Warn("job failed",
		zap.String("job_id", jobID),
		zap.String("kind", string(job.ErrorKind)),
		zap.String("detail", job.ErrorDetail),
	)
	o.publishTerminal(ctx, job)
}

// publishTerminal pushes a best-effort completion event; a publish failure
// never alters the job's terminal state.
func (o *Orchestrator) publishTerminal(ctx context.Context, job news.Job) {
	if o.publisher == nil || o.cfg.CompletionTopic == "" {
		return
	}
	payload := map[string]any{
		"job_id":     job.ID,
		"status":     string(job.Status),
		"topic":      job.Params.Topic,
		"processed":  job.Processed,
		"result_ref": job.ResultRef,
		"error_kind": string(job.ErrorKind),
		"timestamp":  o.clock.Now().Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.CompletionTopic, payload); err != nil {
		o.logger.Warn("completion publish failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func eventID(jobID string) [16]byte {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return [16]byte{}
	}
	return progress.UUIDToBytes(id)
}
