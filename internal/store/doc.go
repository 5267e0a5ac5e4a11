// Package store defines the persistence interfaces used by the crawl pipeline
// and the dashboard API. Implementations live under internal/storage; this
// package must not import database drivers or concrete clients.
package store
