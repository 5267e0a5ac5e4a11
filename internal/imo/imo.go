// Package imo enriches vessels by looking their IMO number up on public
// maritime databases.
package imo

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/osvhub/osv-discovery/internal/crawler"
)

// ErrInvalidIMO is returned for numbers that fail the check digit.
var ErrInvalidIMO = errors.New("invalid imo number")

// Validate reports whether imo is seven digits with a correct check digit.
func Validate(imo string) bool {
	if len(imo) != 7 {
		return false
	}
	sum := 0
	for i := 0; i < 7; i++ {
		if imo[i] < '0' || imo[i] > '9' {
			return false
		}
		if i < 6 {
			sum += int(imo[i]-'0') * (7 - i)
		}
	}
	return sum%10 == int(imo[6]-'0')
}

// Source is one external lookup site.
type Source struct {
	Name        string
	URLTemplate string
	Reliability float64
	MinDelay    time.Duration
	// PhotosOnly sources contribute photos and nothing else.
	PhotosOnly bool
}

// URL fills the template's {imo} placeholder.
func (s Source) URL(imo string) string {
	return strings.ReplaceAll(s.URLTemplate, "{imo}", imo)
}

// DefaultSources lists the supported lookup sites.
var DefaultSources = []Source{
	{
		Name:        "marinetraffic",
		URLTemplate: "https://www.marinetraffic.com/en/ais/details/ships/imo:{imo}",
		Reliability: 0.95,
		MinDelay:    3 * time.Second,
	},
	{
		Name:        "vesselfinder",
		URLTemplate: "https://www.vesselfinder.com/vessels/imo-{imo}",
		Reliability: 0.90,
		MinDelay:    2 * time.Second,
	},
	{
		Name:        "fleetmon",
		URLTemplate: "https://www.fleetmon.com/vessels/{imo}",
		Reliability: 0.85,
		MinDelay:    2500 * time.Millisecond,
	},
	{
		Name:        "shipspotting",
		URLTemplate: "https://www.shipspotting.com/photos/search?imo={imo}",
		Reliability: 0.85,
		MinDelay:    2 * time.Second,
		PhotosOnly:  true,
	},
}

// DomainDelays maps each source host to its minimum request spacing, for
// use as rate limiter overrides.
func DomainDelays(sources []Source) map[string]time.Duration {
	out := make(map[string]time.Duration, len(sources))
	for _, s := range sources {
		if host := crawler.Host(s.URLTemplate); host != "" && s.MinDelay > 0 {
			out[host] = s.MinDelay
		}
	}
	return out
}

func byReliability(sources []Source) []Source {
	out := append([]Source(nil), sources...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Reliability > out[j].Reliability
	})
	return out
}
