// Package api hosts the HTTP server, middleware, and handlers for the movie list.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/movies?top_count=&pop_level= for the JSON list, also served at /api/movies.
//   - GET /api/info for a page describing the JSON list.
//   - GET / for the rendered HTML list.
package api
