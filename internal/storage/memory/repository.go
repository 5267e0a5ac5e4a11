package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Repository implements store.Repository with maps guarded by one mutex. It
// enforces the same uniqueness rules as the Postgres schema: company name,
// vessel IMO, media (vessel, source_url) and feature (vessel, name).
type Repository struct {
	mu  sync.RWMutex
	now func() time.Time

	companies     map[string]*vessel.Company
	companyByName map[string]string
	vessels       map[string]*vessel.Vessel
	vesselByIMO   map[string]string
	media         map[string]*vessel.Media
	specs         []vessel.Specification
	features      map[string]vessel.Feature
	sessions      map[string]*vessel.CrawlSession
	sources       map[string]*vessel.SourcePerformance
	listings      map[string]*vessel.Listing
}

var _ store.Repository = (*Repository)(nil)

// NewRepository returns an empty repository. A nil now uses time.Now.
func NewRepository(now func() time.Time) *Repository {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Repository{
		now:           now,
		companies:     make(map[string]*vessel.Company),
		companyByName: make(map[string]string),
		vessels:       make(map[string]*vessel.Vessel),
		vesselByIMO:   make(map[string]string),
		media:         make(map[string]*vessel.Media),
		features:      make(map[string]vessel.Feature),
		sessions:      make(map[string]*vessel.CrawlSession),
		sources:       make(map[string]*vessel.SourcePerformance),
		listings:      make(map[string]*vessel.Listing),
	}
}

// UpsertCompany inserts or updates by name.
func (r *Repository) UpsertCompany(_ context.Context, c *vessel.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	key := strings.ToUpper(strings.TrimSpace(c.Name))
	if id, ok := r.companyByName[key]; ok {
		existing := r.companies[id]
		c.ID = id
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = now
		cp := *c
		r.companies[id] = &cp
		return nil
	}
	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	r.companies[c.ID] = &cp
	r.companyByName[key] = c.ID
	return nil
}

// ListCompanies filters by name search and orders by name.
func (r *Repository) ListCompanies(_ context.Context, f store.CompanyFilter) ([]vessel.Company, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	search := strings.ToLower(f.Search)
	var out []vessel.Company
	for _, c := range r.companies {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	return page(out, f.Limit, f.Offset), total, nil
}

// UpsertVessel merges by IMO, else by name plus owner.
func (r *Repository) UpsertVessel(_ context.Context, v *vessel.Vessel) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if existing := r.lookupLocked(store.VesselLookup{IMO: v.IMONumber, Name: v.VesselName, Owner: v.OwnerCompany}); existing != nil {
		merged := vessel.Overlay(*existing, *v)
		merged.UpdatedAt = now
		if merged.DataQualityScore == 0 {
			merged.DataQualityScore = existing.DataQualityScore
		}
		r.storeVesselLocked(&merged, existing.IMONumber)
		*v = merged
		return false, nil
	}
	v.ID = uuid.NewString()
	v.CreatedAt, v.UpdatedAt = now, now
	cp := *v
	r.storeVesselLocked(&cp, "")
	return true, nil
}

// SaveVessel overwrites an existing row.
func (r *Repository) SaveVessel(_ context.Context, v *vessel.Vessel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.vessels[v.ID]
	if !ok {
		return store.ErrNotFound
	}
	if v.IMONumber != "" {
		if other, taken := r.vesselByIMO[v.IMONumber]; taken && other != v.ID {
			return store.ErrConflict
		}
	}
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = r.now()
	cp := *v
	r.storeVesselLocked(&cp, existing.IMONumber)
	return nil
}

func (r *Repository) storeVesselLocked(v *vessel.Vessel, oldIMO string) {
	if oldIMO != "" && oldIMO != v.IMONumber {
		delete(r.vesselByIMO, oldIMO)
	}
	r.vessels[v.ID] = v
	if v.IMONumber != "" {
		r.vesselByIMO[v.IMONumber] = v.ID
	}
}

// GetVessel loads one vessel.
func (r *Repository) GetVessel(_ context.Context, id string) (vessel.Vessel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vessels[id]
	if !ok {
		return vessel.Vessel{}, store.ErrNotFound
	}
	return *v, nil
}

// FindVessel resolves by IMO, MMSI, then name plus owner.
func (r *Repository) FindVessel(_ context.Context, l store.VesselLookup) (vessel.Vessel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v := r.lookupLocked(l); v != nil {
		return *v, nil
	}
	return vessel.Vessel{}, store.ErrNotFound
}

func (r *Repository) lookupLocked(l store.VesselLookup) *vessel.Vessel {
	if l.IMO != "" {
		if id, ok := r.vesselByIMO[l.IMO]; ok {
			return r.vessels[id]
		}
	}
	if l.MMSI != "" {
		for _, v := range r.vessels {
			if v.MMSINumber == l.MMSI {
				return v
			}
		}
	}
	if l.Name == "" {
		return nil
	}
	for _, v := range r.vessels {
		if l.IMO != "" && v.IMONumber != "" {
			continue
		}
		if strings.EqualFold(v.VesselName, l.Name) && strings.EqualFold(v.OwnerCompany, l.Owner) {
			return v
		}
	}
	return nil
}

// ListVessels filters, orders by created_at desc and paginates.
func (r *Repository) ListVessels(_ context.Context, f store.VesselFilter) ([]vessel.Vessel, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	search := strings.ToLower(f.Search)
	var out []vessel.Vessel
	for _, v := range r.vessels {
		if f.VesselType != "" && !strings.EqualFold(v.VesselType, f.VesselType) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(v.VesselName), search) &&
			!strings.Contains(strings.ToLower(v.OwnerCompany), search) &&
			!strings.Contains(v.IMONumber, search) {
			continue
		}
		out = append(out, *v)
	}
	sortNewestFirst(out)
	total := len(out)
	return page(out, f.Limit, f.Offset), total, nil
}

// AllVessels returns every vessel, newest first.
func (r *Repository) AllVessels(_ context.Context) ([]vessel.Vessel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]vessel.Vessel, 0, len(r.vessels))
	for _, v := range r.vessels {
		out = append(out, *v)
	}
	sortNewestFirst(out)
	return out, nil
}

// UpdateQualityScore sets data_quality_score.
func (r *Repository) UpdateQualityScore(_ context.Context, id string, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vessels[id]
	if !ok {
		return store.ErrNotFound
	}
	v.DataQualityScore = score
	return nil
}

// UpsertMedia is keyed on (vessel, source_url).
func (r *Repository) UpsertMedia(_ context.Context, m *vessel.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vessels[m.VesselID]; !ok {
		return store.ErrNotFound
	}
	key := m.VesselID + "|" + m.SourceURL
	if existing, ok := r.media[key]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	} else {
		m.ID = uuid.NewString()
		m.CreatedAt = r.now()
	}
	cp := *m
	r.media[key] = &cp
	return nil
}

// MediaExists reports whether (vessel, source_url) is stored.
func (r *Repository) MediaExists(_ context.Context, vesselID, sourceURL string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.media[vesselID+"|"+sourceURL]
	return ok, nil
}

// ListMedia returns media for a vessel, oldest first.
func (r *Repository) ListMedia(_ context.Context, vesselID string) ([]vessel.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []vessel.Media
	for _, m := range r.media {
		if m.VesselID == vesselID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PrimaryPhotoURL picks the highest-confidence photo, oldest first on ties.
func (r *Repository) PrimaryPhotoURL(ctx context.Context, vesselID string) (string, error) {
	all, err := r.ListMedia(ctx, vesselID)
	if err != nil {
		return "", err
	}
	var best *vessel.Media
	for i := range all {
		m := &all[i]
		if m.MediaType != vessel.MediaPhoto {
			continue
		}
		if best == nil || m.Confidence > best.Confidence {
			best = m
		}
	}
	if best == nil {
		return "", nil
	}
	return best.SourceURL, nil
}

// InsertSpecification appends a specification row.
func (r *Repository) InsertSpecification(_ context.Context, s *vessel.Specification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vessels[s.VesselID]; !ok {
		return store.ErrNotFound
	}
	s.ID = uuid.NewString()
	s.CreatedAt = r.now()
	r.specs = append(r.specs, *s)
	return nil
}

// ListSpecifications returns a vessel's specifications.
func (r *Repository) ListSpecifications(_ context.Context, vesselID string) ([]vessel.Specification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []vessel.Specification
	for _, s := range r.specs {
		if s.VesselID == vesselID {
			out = append(out, s)
		}
	}
	return out, nil
}

// UpsertFeature is keyed on (vessel, feature_name).
func (r *Repository) UpsertFeature(_ context.Context, f vessel.Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vessels[f.VesselID]; !ok {
		return store.ErrNotFound
	}
	key := f.VesselID + "|" + f.FeatureName
	if existing, ok := r.features[key]; ok {
		f.CreatedAt = existing.CreatedAt
	} else {
		f.CreatedAt = r.now()
	}
	r.features[key] = f
	return nil
}

// ListFeatures returns a vessel's features ordered by name.
func (r *Repository) ListFeatures(_ context.Context, vesselID string) ([]vessel.Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []vessel.Feature
	for _, f := range r.features {
		if f.VesselID == vesselID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeatureName < out[j].FeatureName })
	return out, nil
}

// CreateSession inserts a session.
func (r *Repository) CreateSession(_ context.Context, s vessel.CrawlSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.sessions[s.ID] = &cp
	return nil
}

// UpdateSession overwrites a session.
func (r *Repository) UpdateSession(_ context.Context, s vessel.CrawlSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return store.ErrNotFound
	}
	cp := s
	r.sessions[s.ID] = &cp
	return nil
}

// GetSession loads one session.
func (r *Repository) GetSession(_ context.Context, id string) (vessel.CrawlSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return vessel.CrawlSession{}, store.ErrNotFound
	}
	return *s, nil
}

// ListSessions returns sessions by started_at desc.
func (r *Repository) ListSessions(_ context.Context, limit int) ([]vessel.CrawlSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]vessel.CrawlSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, limit, 0), nil
}

// ApplySourceDelta folds a delta into the source counters.
func (r *Repository) ApplySourceDelta(_ context.Context, d store.SourceDelta, at time.Time) error {
	if d.Requests() == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.sources[d.SourceName]
	if !ok {
		p = &vessel.SourcePerformance{SourceName: d.SourceName, SourceType: d.SourceType}
		r.sources[d.SourceName] = p
	}
	prevTotal := float64(p.TotalRequests)
	latencyMs := float64(d.TotalLatency) / float64(time.Millisecond)
	p.AvgResponseMs = (p.AvgResponseMs*prevTotal + latencyMs) / (prevTotal + float64(d.Requests()))
	p.TotalRequests += d.Requests()
	p.SuccessfulRequests += d.Successes
	p.FailedRequests += d.Failures
	p.SuccessRate = p.ComputeSuccessRate()
	if d.LastSuccessAt != nil && (p.LastSuccessAt == nil || d.LastSuccessAt.After(*p.LastSuccessAt)) {
		p.LastSuccessAt = d.LastSuccessAt
	}
	if d.LastFailureAt != nil && (p.LastFailureAt == nil || d.LastFailureAt.After(*p.LastFailureAt)) {
		p.LastFailureAt = d.LastFailureAt
	}
	p.UpdatedAt = at
	return nil
}

// ListSourcePerformance orders by success rate desc.
func (r *Repository) ListSourcePerformance(_ context.Context) ([]vessel.SourcePerformance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]vessel.SourcePerformance, 0, len(r.sources))
	for _, p := range r.sources {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate == out[j].SuccessRate {
			return out[i].SourceName < out[j].SourceName
		}
		return out[i].SuccessRate > out[j].SuccessRate
	})
	return out, nil
}

// UpsertListing keeps one listing per vessel.
func (r *Repository) UpsertListing(_ context.Context, l *vessel.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vessels[l.VesselID]; !ok {
		return store.ErrNotFound
	}
	now := r.now()
	if existing, ok := r.listings[l.VesselID]; ok {
		l.ID = existing.ID
		l.CreatedAt = existing.CreatedAt
		l.Featured = l.Featured || existing.Featured
	} else {
		l.ID = uuid.NewString()
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	cp := *l
	r.listings[l.VesselID] = &cp
	return nil
}

// ListingCounts counts active and featured listings.
func (r *Repository) ListingCounts(_ context.Context) (store.ListingCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c store.ListingCounts
	for _, l := range r.listings {
		if l.ListingStatus == "active" {
			c.Active++
		}
		if l.Featured {
			c.Featured++
		}
	}
	return c, nil
}

// DashboardStats aggregates the dashboard counters.
func (r *Repository) DashboardStats(_ context.Context, now time.Time) (store.DashboardStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)

	stats := store.DashboardStats{
		TotalCompanies: len(r.companies),
		TotalVessels:   len(r.vessels),
	}

	var qualitySum float64
	for _, v := range r.vessels {
		qualitySum += v.DataQualityScore
		if !v.CreatedAt.Before(today) {
			stats.VesselsAddedToday++
		}
		if stats.LastUpdate == nil || v.UpdatedAt.After(*stats.LastUpdate) {
			u := v.UpdatedAt
			stats.LastUpdate = &u
		}
	}
	if len(r.vessels) > 0 {
		stats.AvgDataQuality = round(qualitySum/float64(len(r.vessels)), 3)
	}

	withPhotos := map[string]bool{}
	withMedia := map[string]bool{}
	for _, m := range r.media {
		withMedia[m.VesselID] = true
		if m.MediaType == vessel.MediaPhoto {
			withPhotos[m.VesselID] = true
		}
		if !m.CreatedAt.Before(today) {
			stats.MediaCollectedToday++
		}
	}
	stats.VesselsWithPhotos = len(withPhotos)
	withSpecs := map[string]bool{}
	for _, s := range r.specs {
		withSpecs[s.VesselID] = true
	}
	stats.VesselsWithSpecs = len(withSpecs)
	if len(r.vessels) > 0 {
		stats.MediaCollectionRate = round(float64(len(withMedia))/float64(len(r.vessels))*100, 1)
	}

	var recent, completed int
	var durationSum float64
	var durations int
	for _, s := range r.sessions {
		if s.Status == vessel.SessionRunning {
			stats.ActiveCrawlSessions++
		}
		if !s.StartedAt.Before(today) {
			stats.ErrorsToday += s.ErrorsCount
		}
		if s.StartedAt.Before(weekAgo) {
			continue
		}
		recent++
		if s.Status == vessel.SessionCompleted {
			completed++
			if s.DurationSeconds != nil {
				durationSum += *s.DurationSeconds
				durations++
			}
		}
	}
	if recent > 0 {
		stats.CrawlSuccessRate = round(float64(completed)/float64(recent)*100, 1)
	}
	if durations > 0 {
		stats.AvgProcessingTime = round(durationSum/float64(durations), 1)
	}
	return stats, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error {
	return nil
}

func sortNewestFirst(vs []vessel.Vessel) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].CreatedAt.Equal(vs[j].CreatedAt) {
			return vs[i].ID > vs[j].ID
		}
		return vs[i].CreatedAt.After(vs[j].CreatedAt)
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
