package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

// ErrNoWebsite means no candidate URL answered a HEAD with 200.
var ErrNoWebsite = errors.New("no working website found")

var nonWord = regexp.MustCompile(`[^\w]+`)

// Resolver finds a reachable website for a company.
type Resolver struct {
	loader *Loader
	logger *zap.Logger
}

// NewResolver builds a Resolver on top of loader.
func NewResolver(loader *Loader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{loader: loader, logger: logger}
}

// Resolve returns the first candidate that answers 200, or ErrNoWebsite.
func (r *Resolver) Resolve(ctx context.Context, c vessel.Company) (string, error) {
	for _, candidate := range Candidates(c) {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("resolve website for %s: %w", c.Name, err)
		}
		status, err := r.loader.Head(ctx, candidate)
		if err != nil {
			r.logger.Debug("website candidate unreachable", zap.String("url", candidate), zap.Error(err))
			continue
		}
		if status == http.StatusOK {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", c.Name, ErrNoWebsite)
}

// Candidates lists the URLs tried for c, in order and without duplicates.
func Candidates(c vessel.Company) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	site := strings.TrimSpace(c.Website)
	if site != "" {
		add(site)
		if strings.HasPrefix(site, "http://") {
			add("https://" + strings.TrimPrefix(site, "http://"))
		}
		if strings.Contains(site, "www.") {
			add(strings.Replace(site, "www.", "", 1))
		} else if u, err := url.Parse(site); err == nil && u.Host != "" {
			add(u.Scheme + "://www." + u.Host + u.Path)
		}
	}

	clean := nonWord.ReplaceAllString(strings.ToLower(c.Name), "")
	if clean != "" {
		for _, pattern := range []string{
			"https://www.%s.com",
			"http://www.%s.com",
			"https://www.%s.com.my",
			"http://www.%s.com.my",
			"https://%s.com",
			"http://%s.com",
		} {
			add(fmt.Sprintf(pattern, clean))
		}
	}
	return out
}
