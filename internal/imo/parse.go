package imo

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osvhub/osv-discovery/internal/crawler"
)

const maxPhotos = 5

var (
	photoSrc    = regexp.MustCompile(`vessel|ship`)
	yearValue   = regexp.MustCompile(`(\d{4})`)
	floatValue  = regexp.MustCompile(`([\d.]+)`)
	intValue    = regexp.MustCompile(`([\d,]+)`)
	digitsOnly  = regexp.MustCompile(`^\d+$`)
	keyReplacer = strings.NewReplacer(" ", "_", "-", "_")
)

// ParsePage reads the vessel particulars a source page exposes.
func ParsePage(src Source, body []byte, pageURL string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("parse %s page: %w", src.Name, err)
	}
	if src.PhotosOnly {
		return Result{Photos: collectImages(doc.Find("div.photo-item img, div.image-container img"), pageURL, nil)}, nil
	}

	var r Result
	r.VesselName = strings.TrimSpace(doc.Find("h1.vessel-name").First().Text())
	if r.VesselName == "" {
		r.VesselName = strings.TrimSpace(doc.Find("div.vessel-info h1").First().Text())
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		parseField(strings.TrimSpace(cells.Eq(0).Text()), strings.TrimSpace(cells.Eq(1).Text()), &r)
	})
	doc.Find(".spec-item, .detail-row").Each(func(_ int, item *goquery.Selection) {
		label := strings.TrimSpace(item.Find("span.label").First().Text())
		value := strings.TrimSpace(item.Find("span.value").First().Text())
		if label != "" && value != "" {
			parseField(label, value, &r)
		}
	})

	r.CurrentLocation = strings.TrimSpace(doc.Find("div.vessel-position").First().Text())
	r.Photos = collectImages(doc.Find("img"), pageURL, photoSrc)
	if len(r.Photos) == 0 {
		r.Photos = collectImages(doc.Find("div.photo-gallery img"), pageURL, nil)
	}
	return r, nil
}

func collectImages(sel *goquery.Selection, pageURL string, srcFilter *regexp.Regexp) []string {
	var out []string
	sel.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return true
		}
		if srcFilter != nil && !srcFilter.MatchString(src) {
			return true
		}
		abs, err := crawler.ResolveURL(pageURL, src)
		if err != nil {
			return true
		}
		out = appendUnique(out, abs)
		return len(out) < maxPhotos
	})
	return out
}

// parseField maps one label/value pair onto r. The first rule whose key
// test matches wins, even if its value fails to parse.
func parseField(label, value string, r *Result) {
	key := keyReplacer.Replace(strings.ToLower(strings.TrimSpace(label)))
	has := func(s string) bool { return strings.Contains(key, s) }

	switch {
	case has("mmsi"):
		if digitsOnly.MatchString(value) {
			r.MMSI = value
		}
	case has("call") && has("sign"):
		r.CallSign = value
	case has("flag"):
		r.FlagState = value
	case has("type") || has("category"):
		r.VesselType = value
	case has("built") || has("year"):
		if m := yearValue.FindStringSubmatch(value); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				r.BuildYear = &n
			}
		}
	case has("length"):
		r.LengthOverallM = parseFloat(value)
	case has("beam") || has("breadth"):
		r.BeamM = parseFloat(value)
	case has("gross") && has("tonnage"):
		r.GrossTonnage = parseInt(value)
	case has("deadweight") || has("dwt"):
		r.Deadweight = parseInt(value)
	case has("owner"):
		r.Owner = value
	case has("operator") || has("manager"):
		r.Operator = value
	case has("status"):
		r.CurrentStatus = value
	}
}

func parseFloat(value string) *float64 {
	m := floatValue.FindStringSubmatch(value)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.Trim(m[1], "."), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(value string) *int {
	m := intValue.FindStringSubmatch(value)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &n
}
