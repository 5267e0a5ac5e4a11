// Package api hosts the HTTP server, middleware, and REST handlers behind the
// discovery dashboard. Notable routes:
//   - GET /health, /healthz and /readyz for health checks; readyz pings the database.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/vessels, /api/companies and /api/crawl-sessions for browsing.
//   - POST /api/start-crawl to queue a crawl session.
//   - GET /ws for the dashboard WebSocket feed.
package api
