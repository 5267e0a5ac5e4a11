package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/discovery"
	"github.com/osvhub/osv-discovery/internal/marketplace"
	"github.com/osvhub/osv-discovery/internal/media"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/storage/memory"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	companies []vessel.Company
	err       error
}

func (d fakeDirectory) Companies(context.Context) ([]vessel.Company, error) {
	out := append([]vessel.Company(nil), d.companies...)
	return out, d.err
}

type fakeResolver map[string]string

func (r fakeResolver) Resolve(_ context.Context, c vessel.Company) (string, error) {
	if site, ok := r[c.Name]; ok {
		return site, nil
	}
	return "", fmt.Errorf("%s: %w", c.Name, discovery.ErrNoWebsite)
}

type fakePages struct {
	pages map[string][]string
	errs  map[string]error
}

func (p fakePages) Find(_ context.Context, site string) ([]string, error) {
	if err := p.errs[site]; err != nil {
		return nil, err
	}
	return p.pages[site], nil
}

type fakeLoader map[string]string

func (l fakeLoader) Load(ctx context.Context, rawURL string) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	body, ok := l[rawURL]
	if !ok {
		return crawler.FetchResponse{URL: rawURL, StatusCode: 404}, &crawler.StatusError{URL: rawURL, Code: 404}
	}
	return crawler.FetchResponse{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

type fakeCollector struct{}

func (fakeCollector) Photos(_ context.Context, v vessel.Vessel) []media.Item {
	return []media.Item{{
		MediaType:  vessel.MediaPhoto,
		URL:        "https://img.example.com/" + v.IMONumber + ".jpg",
		Title:      v.VesselName,
		Confidence: 0.8,
	}}
}

func (fakeCollector) Documents(_ context.Context, v vessel.Vessel) []media.Item {
	return []media.Item{{
		MediaType:    vessel.MediaDocument,
		DocumentType: vessel.DocSpecification,
		URL:          "https://acme.example.com/" + v.IMONumber + "-spec.pdf",
		Confidence:   media.DocumentConfidence,
	}}
}

const specText = `Length Overall: 68.5 m
Gross Tonnage: 1,678
Equipped with a helideck and a 10 t deck crane.`

type fakeDownloader struct {
	mu    sync.Mutex
	calls int
}

func (d *fakeDownloader) Download(_ context.Context, item media.Item) (vessel.Media, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	m := vessel.Media{
		VesselID:     item.VesselID,
		MediaType:    item.MediaType,
		DocumentType: item.DocumentType,
		SourceURL:    item.URL,
		LocalPath:    "memory://" + item.URL,
		Confidence:   item.Confidence,
	}
	if item.MediaType == vessel.MediaDocument {
		m.ExtractedText = specText
	}
	return m, nil
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(_ context.Context, v *vessel.Vessel) (bool, error) {
	if v.FlagState != "" {
		return false, nil
	}
	v.FlagState = "Malaysia"
	return true, nil
}

const fleetPage = `<html><body>
<div class="vessel-card"><p>Vessel Name: SEA PRIDE</p><p>IMO: 9074729</p></div>
<div class="vessel-card"><p>Vessel Name: OCEAN STAR</p><p>IMO: 9176187</p></div>
</body></html>`

type harness struct {
	repo     *memory.Repository
	recorder *progress.Recorder
	download *fakeDownloader
	runner   *Runner
}

func newHarness(dir fakeDirectory, pages fakePages, cfg Config) *harness {
	repo := memory.NewRepository(func() time.Time { return testNow })
	rec := progress.NewRecorder()
	dl := &fakeDownloader{}
	deps := Deps{
		Repo:        repo,
		Directory:   dir,
		Resolver:    fakeResolver{"Acme Marine": "https://acme.example.com/"},
		Pages:       pages,
		Loader:      fakeLoader{"https://acme.example.com/fleet": fleetPage},
		Collector:   fakeCollector{},
		Downloader:  dl,
		Enricher:    fakeEnricher{},
		Marketplace: marketplace.NewSyncer(repo, nil, "", nil),
		Emitter:     rec,
		Clock:       system.Fixed{T: testNow},
	}
	return &harness{repo: repo, recorder: rec, download: dl, runner: NewRunner(deps, cfg)}
}

func defaultDirectory() fakeDirectory {
	return fakeDirectory{companies: []vessel.Company{
		{Name: "Acme Marine", MembershipType: vessel.MembershipOrdinary},
		{Name: "Quiet Shipping", MembershipType: vessel.MembershipAssociate},
	}}
}

func defaultPages() fakePages {
	return fakePages{pages: map[string][]string{
		"https://acme.example.com/": {"https://acme.example.com/fleet"},
	}}
}

var errBoom = errors.New("boom")
