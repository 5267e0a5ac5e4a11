package crawler

import (
	"net/http"
	"time"
)

// SessionType names the kind of crawl a session performs.
type SessionType string

// Session types accepted by the crawl API.
const (
	SessionFull       SessionType = "full"
	SessionDiscovery  SessionType = "discovery"
	SessionEnrichment SessionType = "enrichment"
)

// SessionOptions captures per-session knobs requested by the client.
type SessionOptions struct {
	Type            SessionType `json:"session_type"`
	SkipMedia       bool        `json:"skip_media"`
	SkipEnrichment  bool        `json:"skip_enrichment"`
	SkipMarketplace bool        `json:"skip_marketplace"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL                   string
	Method                string
	UseHeadless           bool
	Headers               http.Header
	RespectRobots         bool
	RespectRobotsProvided bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// OK reports whether the fetch ended with HTTP 200.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}
