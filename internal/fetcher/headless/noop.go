package headless

import (
	"context"
	"errors"

	"github.com/osvhub/osv-discovery/internal/crawler"
)

// ErrDisabled is returned when headless rendering is turned off.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop stands in for the chromedp fetcher when headless.enabled is false.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns ErrDisabled.
func (Noop) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, ErrDisabled
}
