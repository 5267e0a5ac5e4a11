// Package vessel defines the persisted records of the discovery system:
// member companies, offshore support vessels, their media, extracted
// specifications and features, crawl sessions, per-source performance
// counters and marketplace listings.
package vessel
