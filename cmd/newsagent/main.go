// Package main wires together the news agent service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/newsworthy/news-agent/internal/api"
	openaiclassifier "github.com/newsworthy/news-agent/internal/classifier/openai"
	"github.com/newsworthy/news-agent/internal/clock/system"
	"github.com/newsworthy/news-agent/internal/config"
	"github.com/newsworthy/news-agent/internal/id/uuid"
	"github.com/newsworthy/news-agent/internal/logging"
	"github.com/newsworthy/news-agent/internal/news"
	"github.com/newsworthy/news-agent/internal/orchestrator"
	"github.com/newsworthy/news-agent/internal/progress"
	"github.com/newsworthy/news-agent/internal/progress/sinks"
	pubsubpublisher "github.com/newsworthy/news-agent/internal/publisher/pubsub"
	"github.com/newsworthy/news-agent/internal/registry"
	gcsstore "github.com/newsworthy/news-agent/internal/resultstore/gcs"
	localstore "github.com/newsworthy/news-agent/internal/resultstore/local"
	postgresstore "github.com/newsworthy/news-agent/internal/resultstore/postgres"
	"github.com/newsworthy/news-agent/internal/source/newsdata"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()
	reg := registry.New(cfg.Registry.MaxJobs, clock)

	results, seedStore, closeStore, err := buildResultStore(ctx, cfg)
	if err != nil {
		logger.Fatal("result store init failed", zap.Error(err))
	}
	defer closeStore()

	if seedStore != nil {
		seedRegistry(ctx, reg, seedStore, clock, logger)
	}

	promReg := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(promReg)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	var publisher news.Publisher
	var completionTopic string
	if cfg.PubSub.Enabled {
		client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer client.Close()
		pub := pubsubpublisher.New(client)
		defer pub.Close()
		publisher = pub
		completionTopic = cfg.PubSub.TopicName
	}

	source := newsdata.New(newsdata.Config{
		BaseURL:  cfg.NewsData.BaseURL,
		APIKey:   cfg.NewsData.APIKey,
		PageSize: cfg.NewsData.PageSize,
		MaxPages: cfg.NewsData.MaxPages,
		Timeout:  time.Duration(cfg.NewsData.TimeoutSeconds) * time.Second,
	}, logger.Named("newsdata"))

	classifier := openaiclassifier.New(openaiclassifier.Config{
		Endpoint: cfg.OpenAI.Endpoint,
		APIKey:   cfg.OpenAI.APIKey,
		Model:    cfg.OpenAI.Model,
		Timeout:  time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
	}, logger.Named("openai"))

	orch := orchestrator.New(
		reg,
		source,
		classifier,
		results,
		publisher,
		hub,
		clock,
		idGen,
		orchestrator.Config{
			ClassifyConcurrency: cfg.Pipeline.ClassifyConcurrency,
			FetchTimeout:        cfg.FetchTimeout(),
			ClassifyTimeout:     cfg.ClassifyTimeout(),
			StoreTimeout:        cfg.StoreTimeout(),
			CompletionTopic:     completionTopic,
		},
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(orch, reg, results, cfg, promReg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildResultStore selects the configured backend. The local backend also
// acts as the seed store for reloading finished jobs after a restart.
func buildResultStore(ctx context.Context, cfg config.Config) (news.ResultStore, *localstore.Store, func(), error) {
	switch cfg.Storage.Provider {
	case "local":
		store, err := localstore.New(localstore.Config{BaseDir: cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() {}, nil
	case "postgres":
		store, err := postgresstore.New(ctx, postgresstore.Config{
			DSN:      cfg.Storage.Postgres.DSN,
			Table:    cfg.Storage.Postgres.Table,
			MaxConns: cfg.Storage.Postgres.MaxConns,
			MinConns: cfg.Storage.Postgres.MinConns,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, store.Close, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := gcsstore.New(client, gcsstore.Config{
			Bucket: cfg.Storage.GCS.Bucket,
			Prefix: cfg.Storage.GCS.Prefix,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		return store, nil, func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

// seedRegistry reloads completed jobs from disk so their results remain
// pollable across restarts.
func seedRegistry(ctx context.Context, reg *registry.Registry, store *localstore.Store, clock news.Clock, logger *zap.Logger) {
	aggs, err := store.LoadExisting(ctx)
	if err != nil {
		logger.Warn("scan existing results failed", zap.Error(err))
		return
	}
	for _, agg := range aggs {
		createdAt := agg.GeneratedAt
		if createdAt.IsZero() {
			createdAt = clock.Now()
		}
		ref, err := store.Ref(agg.JobID)
		if err != nil {
			logger.Warn("seed job skipped", zap.String("job_id", agg.JobID), zap.Error(err))
			continue
		}
		job := news.Job{
			ID:            agg.JobID,
			Status:        news.JobStatusCompleted,
			Params:        news.SearchParams{Topic: agg.Topic},
			TotalExpected: agg.Summary.Total,
			Processed:     agg.Summary.Total,
			CreatedAt:     createdAt,
			UpdatedAt:     createdAt,
			ResultRef:     ref,
		}
		if err := reg.Seed(job); err != nil {
			logger.Warn("seed job failed", zap.String("job_id", agg.JobID), zap.Error(err))
		}
	}
	if len(aggs) > 0 {
		logger.Info("reloaded finished jobs", zap.Int("count", len(aggs)))
	}
}
