// Package main hosts the news agent service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and search job
//     endpoints. Submissions are validated, registered, and answered with a
//     job id before any upstream call happens.
//   - Pipeline: the orchestrator runs one goroutine per job. It fetches
//     articles from NewsData.io, classifies each with an OpenAI-compatible
//     model under a bounded concurrency cap, aggregates the outcomes, and
//     persists the result before marking the job terminal.
//   - Persistence: aggregates are written to the configured result store
//     (local filesystem, Postgres, or GCS). The local backend also reloads
//     finished jobs into the registry on startup. When Pub/Sub is enabled,
//     a compact completion event is published per terminal job.
//   - Configuration & plumbing: Viper populates config from env/files with
//     the NEWSAGENT_ prefix; zap provides structured logging; Prometheus
//     metrics are exported through the progress sink and /metrics handler.
//
// Operational notes:
//   - Concurrency model: jobs are independent goroutines; classifier calls
//     within a job share a semaphore sized by
//     pipeline.classify_concurrency. Shutdown drains the HTTP server and
//     flushes the progress hub; running jobs finish on their own budgets.
//   - Registry: the in-memory registry keeps at most registry.max_jobs
//     records, evicting the oldest terminal jobs first and never evicting a
//     job that is still running.
//   - Run locally: go run ./cmd/newsagent -config config.yaml (or rely
//     solely on NEWSAGENT_* env overrides).
package main
