package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/discovery"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/storage/memory"
	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

func fullItem(id string) crawler.QueueItem {
	return crawler.QueueItem{SessionID: id, Options: crawler.SessionOptions{Type: crawler.SessionFull}}
}

func TestRunFullSession(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 2, Marketplace: true})
	ctx := context.Background()

	sess := h.runner.Run(ctx, fullItem("s-1"))

	require.Equal(t, vessel.SessionCompleted, sess.Status)
	require.Equal(t, 2, sess.CompaniesProcessed)
	require.Equal(t, 2, sess.VesselsFound)
	require.Equal(t, 4, sess.MediaCollected)
	require.Zero(t, sess.ErrorsCount)
	require.NotNil(t, sess.CompletedAt)
	require.NotNil(t, sess.DurationSeconds)
	for _, phase := range []string{PhaseDiscovery, PhaseEnhancement, PhaseEnrichment, PhaseValidation, PhaseMarketplace} {
		require.Contains(t, sess.Results, phase)
	}

	stored, err := h.repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, vessel.SessionCompleted, stored.Status)
	require.Equal(t, 2, stored.VesselsFound)

	v, err := h.repo.FindVessel(ctx, store.VesselLookup{IMO: "9074729"})
	require.NoError(t, err)
	require.Equal(t, "Acme Marine", v.OwnerCompany)
	require.NotNil(t, v.OwnerCompanyID)
	require.Equal(t, "Malaysia", v.FlagState)
	require.NotNil(t, v.LengthOverallM)
	require.InDelta(t, 68.5, *v.LengthOverallM, 1e-9)
	require.Equal(t, 1678, *v.GrossTonnage)
	require.InDelta(t, vessel.QualityScore(&v), v.DataQualityScore, 1e-9)

	mediaRows, err := h.repo.ListMedia(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, mediaRows, 2)
	specs, err := h.repo.ListSpecifications(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, SpecExtractionMethod, specs[0].ExtractionMethod)
	features, err := h.repo.ListFeatures(ctx, v.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.FeatureName)
	}
	require.Contains(t, names, "helicopter_deck")
	require.Contains(t, names, "crane")

	counts, err := h.repo.ListingCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts.Active)

	stages := h.recorder.Stages()
	require.Equal(t, progress.StageSessionStart, stages[0])
	require.Equal(t, progress.StageSessionDone, stages[len(stages)-1])
	require.Contains(t, stages, progress.StageVesselFound)
	require.Contains(t, stages, progress.StageMediaCollected)
	require.Contains(t, stages, progress.StagePhaseProgress)
	for _, evt := range h.recorder.Events() {
		require.NoError(t, evt.Validate(), evt.Stage)
	}
}

func TestRunSkipsExistingMedia(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 1})
	ctx := context.Background()

	h.runner.Run(ctx, fullItem("s-1"))
	first := h.download.calls
	second := h.runner.Run(ctx, fullItem("s-2"))

	require.Equal(t, 4, first)
	require.Equal(t, first, h.download.calls)
	require.Zero(t, second.MediaCollected)
	require.Equal(t, 2, second.VesselsUpdated)
}

func TestRunDiscoveryOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 1, Marketplace: true})
	sess := h.runner.Run(context.Background(), crawler.QueueItem{
		SessionID: "s-1",
		Options:   crawler.SessionOptions{Type: crawler.SessionDiscovery},
	})

	require.Equal(t, vessel.SessionCompleted, sess.Status)
	require.Contains(t, sess.Results, PhaseDiscovery)
	require.Contains(t, sess.Results, PhaseValidation)
	require.NotContains(t, sess.Results, PhaseEnhancement)
	require.NotContains(t, sess.Results, PhaseMarketplace)
	require.Zero(t, h.download.calls)
}

func TestRunRecordsCompanyErrors(t *testing.T) {
	t.Parallel()

	pages := fakePages{errs: map[string]error{"https://acme.example.com/": errBoom}}
	h := newHarness(defaultDirectory(), pages, Config{MaxWorkers: 2})

	sess := h.runner.Run(context.Background(), fullItem("s-1"))

	require.Equal(t, vessel.SessionCompleted, sess.Status)
	require.Equal(t, 2, sess.CompaniesProcessed)
	require.Equal(t, 1, sess.ErrorsCount)
	require.Len(t, sess.ErrorLog, 1)
	require.Equal(t, PhaseDiscovery, sess.ErrorLog[0].Phase)
	require.Equal(t, "Acme Marine", sess.ErrorLog[0].Source)
	require.Contains(t, h.recorder.Stages(), progress.StageCompanyError)
}

func TestRunSkipsBlocklistedSite(t *testing.T) {
	t.Parallel()

	pages := fakePages{errs: map[string]error{
		"https://acme.example.com/": fmt.Errorf("https://acme.example.com/: %w", discovery.ErrBlocked),
	}}
	h := newHarness(defaultDirectory(), pages, Config{MaxWorkers: 1})

	sess := h.runner.Run(context.Background(), crawler.QueueItem{
		SessionID: "s-1",
		Options:   crawler.SessionOptions{Type: crawler.SessionDiscovery},
	})

	require.Equal(t, vessel.SessionCompleted, sess.Status)
	require.Zero(t, sess.VesselsFound)
	require.Zero(t, sess.ErrorsCount)
	require.Contains(t, h.recorder.Stages(), progress.StageCompanySkipped)
	for _, evt := range h.recorder.Events() {
		require.NoError(t, evt.Validate(), evt.Stage)
	}
}

func TestRunCrawlsSharedPagesOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 1})
	h.runner.Resolver = fakeResolver{
		"Acme Marine":    "https://acme.example.com/",
		"Quiet Shipping": "https://acme.example.com/",
	}

	sess := h.runner.Run(context.Background(), crawler.QueueItem{
		SessionID: "s-1",
		Options:   crawler.SessionOptions{Type: crawler.SessionDiscovery},
	})

	require.Equal(t, vessel.SessionCompleted, sess.Status)
	require.Equal(t, 2, sess.VesselsFound)
	require.Zero(t, sess.VesselsUpdated)
	discovered, ok := sess.Results[PhaseDiscovery].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 1, discovered["vessel_pages"])
	require.Equal(t, 2, discovered["companies_with_web"])
}

type upsertFailingRepo struct {
	*memory.Repository
	err error
}

func (r upsertFailingRepo) UpsertVessel(context.Context, *vessel.Vessel) (bool, error) {
	return false, r.err
}

func TestRunFailsWhenVesselStoreFails(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 2})
	h.runner.Repo = upsertFailingRepo{Repository: h.repo, err: errBoom}
	ctx := context.Background()

	sess := h.runner.Run(ctx, fullItem("s-1"))

	require.Equal(t, vessel.SessionFailed, sess.Status)
	require.NotEmpty(t, sess.ErrorLog)
	require.Contains(t, sess.ErrorLog[len(sess.ErrorLog)-1].Message, "save vessel")
	require.NotContains(t, sess.Results, PhaseEnhancement)

	stored, err := h.repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, vessel.SessionFailed, stored.Status)
}

func TestRunContinuesPastVesselConflicts(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 1})
	h.runner.Repo = upsertFailingRepo{Repository: h.repo, err: store.ErrConflict}

	sess := h.runner.Run(context.Background(), crawler.QueueItem{
		SessionID: "s-1",
		Options:   crawler.SessionOptions{Type: crawler.SessionDiscovery},
	})

	require.Equal(t, vessel.SessionCompleted, sess.Status)
	require.Equal(t, 2, sess.ErrorsCount)
	require.Zero(t, sess.VesselsFound)
}

type photoEnricher struct{}

func (photoEnricher) Enrich(_ context.Context, v *vessel.Vessel) (bool, error) {
	v.PhotoURLs = append(v.PhotoURLs, "https://imo.example.com/"+v.IMONumber+".jpg")
	return false, nil
}

func TestRunStoresLookupPhotos(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("downloaded with media", func(t *testing.T) {
		t.Parallel()
		h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 1})
		h.runner.Enricher = photoEnricher{}

		sess := h.runner.Run(ctx, fullItem("s-1"))
		require.Equal(t, vessel.SessionCompleted, sess.Status)
		require.Equal(t, 6, sess.MediaCollected)
		require.Equal(t, 6, h.download.calls)

		v, err := h.repo.FindVessel(ctx, store.VesselLookup{IMO: "9074729"})
		require.NoError(t, err)
		rows, err := h.repo.ListMedia(ctx, v.ID)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		photo, err := h.repo.PrimaryPhotoURL(ctx, v.ID)
		require.NoError(t, err)
		require.Equal(t, "https://img.example.com/9074729.jpg", photo)
	})

	t.Run("links only when media is skipped", func(t *testing.T) {
		t.Parallel()
		h := newHarness(defaultDirectory(), defaultPages(), Config{MaxWorkers: 1})
		h.runner.Enricher = photoEnricher{}

		sess := h.runner.Run(ctx, crawler.QueueItem{
			SessionID: "s-1",
			Options:   crawler.SessionOptions{Type: crawler.SessionFull, SkipMedia: true},
		})
		require.Equal(t, vessel.SessionCompleted, sess.Status)
		require.Equal(t, 2, sess.MediaCollected)
		require.Zero(t, h.download.calls)

		v, err := h.repo.FindVessel(ctx, store.VesselLookup{IMO: "9176187"})
		require.NoError(t, err)
		rows, err := h.repo.ListMedia(ctx, v.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Empty(t, rows[0].LocalPath)
		photo, err := h.repo.PrimaryPhotoURL(ctx, v.ID)
		require.NoError(t, err)
		require.Equal(t, "https://imo.example.com/9176187.jpg", photo)
	})
}

func TestRunFailsWhenDirectoryUnreadable(t *testing.T) {
	t.Parallel()

	h := newHarness(fakeDirectory{err: errBoom}, defaultPages(), Config{})
	ctx := context.Background()

	sess := h.runner.Run(ctx, fullItem("s-1"))

	require.Equal(t, vessel.SessionFailed, sess.Status)
	require.Equal(t, 1, sess.ErrorsCount)
	require.Contains(t, sess.ErrorLog[0].Message, "load member directory")
	require.Equal(t, PhaseDiscovery, sess.Results["stopped_in_phase"])

	stored, err := h.repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, vessel.SessionFailed, stored.Status)

	stages := h.recorder.Stages()
	require.Equal(t, progress.StageSessionError, stages[len(stages)-1])
}

func TestRunPausedOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := h.runner.Run(ctx, fullItem("s-1"))

	require.Equal(t, vessel.SessionPaused, sess.Status)
	stored, err := h.repo.GetSession(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, vessel.SessionPaused, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestPlan(t *testing.T) {
	t.Parallel()

	h := newHarness(defaultDirectory(), defaultPages(), Config{Marketplace: true})
	names := func(opts crawler.SessionOptions) []string {
		var out []string
		for _, p := range h.runner.plan(opts) {
			out = append(out, p.name)
		}
		return out
	}

	tests := []struct {
		name string
		opts crawler.SessionOptions
		want []string
	}{
		{"full", crawler.SessionOptions{Type: crawler.SessionFull},
			[]string{PhaseDiscovery, PhaseEnhancement, PhaseEnrichment, PhaseValidation, PhaseMarketplace}},
		{"empty type runs everything", crawler.SessionOptions{},
			[]string{PhaseDiscovery, PhaseEnhancement, PhaseEnrichment, PhaseValidation, PhaseMarketplace}},
		{"skips", crawler.SessionOptions{Type: crawler.SessionFull, SkipMedia: true, SkipEnrichment: true, SkipMarketplace: true},
			[]string{PhaseDiscovery, PhaseValidation}},
		{"discovery", crawler.SessionOptions{Type: crawler.SessionDiscovery},
			[]string{PhaseDiscovery, PhaseValidation}},
		{"enrichment", crawler.SessionOptions{Type: crawler.SessionEnrichment},
			[]string{PhaseEnhancement, PhaseEnrichment, PhaseValidation, PhaseMarketplace}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, names(tt.opts))
		})
	}
}
