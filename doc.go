// osv-discovery finds offshore support vessels operated by MOSVA member
// companies and keeps a browsable catalog of them.
//
// Architecture overview:
//   - Member directory: mosva parses the saved member listings under
//     mosva.data_dir into companies with their websites.
//   - Discovery: each company site is resolved, its fleet pages are located and
//     the vessels on them are extracted. Pages rendered by scripts are re-fetched
//     through headless Chrome when headless.enabled is set.
//   - Enhancement: photos and documents for every vessel are downloaded to the
//     configured blob store (local/GCS/MinIO/memory); PDF spec sheets are parsed
//     for specifications and features.
//   - Enrichment: vessels with a valid IMO number are looked up across public
//     ship databases, most reliable first, with a 24h cache (memory or Redis).
//   - Marketplace: vessels are converted into charter listings, merging with
//     existing records when the incoming data is of higher quality.
//   - Dashboard: chi serves the REST API and /metrics; /ws pushes progress,
//     stats and system messages to browsers over gobwas/ws.
//
// Operational notes:
//   - Sessions are queued by POST /api/start-crawl and executed by
//     crawler.session_workers workers; company fan-out is bounded by
//     crawler.max_workers and every request waits on a per-domain limiter.
//   - Data lives in PostgreSQL when database.dsn is set (apply the schema with
//     `osv-discovery migrate`), otherwise in memory for the process lifetime.
//   - Vessel and session events are published to Pub/Sub when
//     publisher.backend is pubsub.
//
// Quick start:
//   - osv-discovery serve --config config.yaml
//   - osv-discovery discover --type discovery
package main
