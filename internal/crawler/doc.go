// Package crawler holds the fetch contracts shared by the discovery, media and
// enrichment pipelines: fetcher and blob store interfaces, request/response
// types, URL normalization, host blocklists and the retry policy.
package crawler
