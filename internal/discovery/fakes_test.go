package discovery

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/osvhub/osv-discovery/internal/crawler"
)

var errUnreachable = errors.New("dial tcp: no such host")

type route struct {
	status int
	body   string
}

type fakeFetcher struct {
	mu     sync.Mutex
	routes map[string]route
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{routes: make(map[string]route)}
}

func (f *fakeFetcher) on(method, url string, status int, body string) *fakeFetcher {
	f.routes[method+" "+url] = route{status: status, body: body}
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := req.Method + " " + req.URL
	f.calls = append(f.calls, key)
	r, ok := f.routes[key]
	if !ok {
		return crawler.FetchResponse{}, errUnreachable
	}
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: r.status,
		Body:       []byte(r.body),
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type stubDetector struct{ promote bool }

func (d stubDetector) ShouldPromote(crawler.FetchResponse) bool { return d.promote }

func newTestLoader(f crawler.Fetcher) *Loader {
	return NewLoader(LoaderConfig{
		Fetcher: f,
		Retry:   crawler.NewRetryPolicy(1, 0, 0),
	})
}
