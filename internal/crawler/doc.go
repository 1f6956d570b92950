// Package crawler defines the shared vocabulary of the harvester: crawl and
// item records, the collaborator interfaces the orchestrator depends on, the
// error taxonomy, and the pacing helpers used between items and cycles.
package crawler
