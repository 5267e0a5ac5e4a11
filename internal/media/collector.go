// Package media finds vessel photos and documents, downloads them into the
// blob store and extracts text from PDFs.
package media

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Photo source names, also used as source_performance keys.
const (
	SourceShipSpotting      = "shipspotting"
	SourceMaritimeConnector = "maritime_connector"
	SourceVesselPage        = "vessel_page"

	sourceType = "photo_source"
)

const (
	shipSpottingSearch = "https://www.shipspotting.com/photos/search?imo="
	maritimeConnector  = "https://maritime-connector.com/ship/"
)

// DefaultTrustedHosts earn a confidence bonus.
var DefaultTrustedHosts = []string{"shipspotting.com", "marinetraffic.com", "vesselfinder.com"}

// Item is a photo or document located but not yet downloaded.
type Item struct {
	VesselID     string
	MediaType    vessel.MediaType
	DocumentType vessel.DocumentType
	URL          string
	Title        string
	Source       string
	Confidence   float64
}

// CollectorConfig tunes a Collector.
type CollectorConfig struct {
	MaxPhotos    int
	TrustedHosts []string
	Retry        crawler.RetryPolicy
}

// Collector locates media for a vessel.
type Collector struct {
	fetcher   crawler.Fetcher
	emitter   progress.Emitter
	clock     crawler.Clock
	retry     crawler.RetryPolicy
	trusted   []string
	maxPhotos int
	logger    *zap.Logger
}

// NewCollector builds a Collector. emitter and clock may be nil.
func NewCollector(fetcher crawler.Fetcher, emitter progress.Emitter, clock crawler.Clock, cfg CollectorConfig, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if clock == nil {
		clock = system.New()
	}
	trusted := cfg.TrustedHosts
	if len(trusted) == 0 {
		trusted = DefaultTrustedHosts
	}
	maxPhotos := cfg.MaxPhotos
	if maxPhotos <= 0 {
		maxPhotos = 5
	}
	return &Collector{
		fetcher:   fetcher,
		emitter:   emitter,
		clock:     clock,
		retry:     cfg.Retry,
		trusted:   trusted,
		maxPhotos: maxPhotos,
		logger:    logger.Named("media"),
	}
}

// Photos searches the photo sources for v and returns the most confident
// matches, at most MaxPhotos of them.
func (c *Collector) Photos(ctx context.Context, v vessel.Vessel) []Item {
	var found []Item
	if v.IMONumber != "" {
		url := shipSpottingSearch + v.IMONumber
		if body, ok := c.fetch(ctx, SourceShipSpotting, url); ok {
			found = append(found, ParseShipSpotting(body, url, v, c.trusted)...)
		}
	}
	if slug := Slug(v.VesselName); slug != "" {
		url := maritimeConnector + slug + "/"
		if body, ok := c.fetch(ctx, SourceMaritimeConnector, url); ok {
			found = append(found, ParseMaritimeConnector(body, url, v, c.trusted)...)
		}
	}
	for _, u := range v.PhotoURLs {
		found = append(found, Item{
			VesselID:   v.ID,
			MediaType:  vessel.MediaPhoto,
			URL:        u,
			Source:     SourceVesselPage,
			Confidence: PhotoConfidence(v, u, "", c.trusted),
		})
	}
	return topPhotos(found, c.maxPhotos)
}

// Documents lists downloadable documents linked from the vessel's source page.
func (c *Collector) Documents(ctx context.Context, v vessel.Vessel) []Item {
	if v.SourceURL == "" {
		return nil
	}
	body, ok := c.fetch(ctx, SourceVesselPage, v.SourceURL)
	if !ok {
		return nil
	}
	docs := ParseDocuments(body, v.SourceURL)
	for i := range docs {
		docs[i].VesselID = v.ID
	}
	return docs
}

func (c *Collector) fetch(ctx context.Context, source, url string) ([]byte, bool) {
	start := c.clock.Now()
	resp, err := crawler.FetchWithRetry(ctx, c.fetcher, c.retry, crawler.FetchRequest{URL: url, Method: http.MethodGet})
	now := c.clock.Now()
	dur := now.Sub(start)
	if dur < 0 {
		dur = 0
	}
	c.emitter.Emit(progress.Event{
		TS:          now,
		Stage:       progress.StageSourceResult,
		Source:      source,
		SourceType:  sourceType,
		URL:         url,
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Success:     err == nil,
		Dur:         dur,
	})
	if err != nil {
		c.logger.Debug("media source fetch failed", zap.String("source", source), zap.String("url", url), zap.Error(err))
		return nil, false
	}
	return resp.Body, true
}

// topPhotos de-duplicates by URL, drops weak matches and keeps the n most
// confident photos.
func topPhotos(items []Item, n int) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Confidence <= MinPhotoConfidence {
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Slug converts a vessel name to the lowercase dash-separated form used in
// directory URLs.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
