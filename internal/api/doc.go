// Package api hosts the read-only HTTP status surface. Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the ledger.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/crawls?limit=N lists recent crawls, newest first.
//   - GET /v1/crawls/{crawl_id}/items lists a crawl's items in ranking order.
package api
