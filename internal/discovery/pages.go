package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/crawler"
)

// ErrBlocked means the site's host is on the domain blocklist.
var ErrBlocked = errors.New("site is blocklisted")

// Keywords mark a link as likely pointing at fleet content.
var Keywords = []string{
	"fleet", "vessel", "vessels", "ships", "marine", "offshore", "charter",
	"osv", "supply", "workboat", "tug", "our fleet", "equipment", "assets",
}

// CommonPaths are tried when a homepage has no fleet links.
var CommonPaths = []string{
	"/fleet", "/vessels", "/ships", "/marine", "/offshore",
	"/services/fleet", "/services/vessels", "/charter",
	"/fleet.html", "/vessels.html", "/marine.html",
}

// Pages discovers fleet pages on a company site.
type Pages struct {
	loader    *Loader
	blocklist *crawler.DomainBlocklist
	logger    *zap.Logger
}

// NewPages builds a Pages finder. blocklist may be nil.
func NewPages(loader *Loader, blocklist *crawler.DomainBlocklist, logger *zap.Logger) *Pages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pages{loader: loader, blocklist: blocklist, logger: logger}
}

// Find returns normalized, de-duplicated fleet page URLs on siteURL's host.
func (p *Pages) Find(ctx context.Context, siteURL string) ([]string, error) {
	if p.blocklist.BlocksURL(siteURL) {
		return nil, fmt.Errorf("%s: %w", siteURL, ErrBlocked)
	}
	resp, err := p.loader.Load(ctx, siteURL)
	if err != nil {
		return nil, err
	}
	links, err := p.Links(resp.Body, siteURL)
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		return links, nil
	}
	p.logger.Debug("no fleet links on homepage, probing common paths", zap.String("site", siteURL))
	return p.tryCommonPaths(ctx, siteURL), nil
}

// Links extracts fleet links from an HTML document served at baseURL.
func (p *Pages) Links(body []byte, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", baseURL, err)
	}
	set := newURLSet()
	keep := func(href string) {
		abs, err := crawler.ResolveURL(baseURL, href)
		if err != nil || !strings.HasPrefix(abs, "http") {
			return
		}
		if !crawler.SameSite(abs, baseURL) || p.blocklist.BlocksURL(abs) {
			return
		}
		set.add(abs)
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		combined := strings.ToLower(strings.TrimSpace(a.Text()) + " " + href)
		if containsKeyword(combined) {
			keep(href)
		}
	})
	doc.Find("nav a[href], .menu a[href], ul a[href]").Each(func(_ int, a *goquery.Selection) {
		if containsKeyword(strings.ToLower(strings.TrimSpace(a.Text()))) {
			href, _ := a.Attr("href")
			keep(href)
		}
	})
	return set.list(), nil
}

func (p *Pages) tryCommonPaths(ctx context.Context, siteURL string) []string {
	set := newURLSet()
	for _, path := range CommonPaths {
		if ctx.Err() != nil {
			break
		}
		candidate, err := crawler.ResolveURL(siteURL, path)
		if err != nil {
			continue
		}
		status, err := p.loader.Head(ctx, candidate)
		if err == nil && status == http.StatusOK {
			set.add(candidate)
		}
	}
	return set.list()
}

func containsKeyword(s string) bool {
	for _, kw := range Keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

type urlSet struct {
	seen  map[string]struct{}
	order []string
}

func newURLSet() *urlSet {
	return &urlSet{seen: make(map[string]struct{})}
}

func (s *urlSet) add(u string) {
	if _, ok := s.seen[u]; ok {
		return
	}
	s.seen[u] = struct{}{}
	s.order = append(s.order, u)
}

func (s *urlSet) list() []string {
	return s.order
}
