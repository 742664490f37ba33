// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/search to submit a search job.
//   - GET /v1/jobs and /v1/jobs/{job_id}/... for status, results, and
//     exports.
package api
