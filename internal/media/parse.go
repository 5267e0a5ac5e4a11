package media

import (
	"bytes"
	"math"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// MinPhotoConfidence is the exclusive lower bound for keeping a photo.
const MinPhotoConfidence = 0.3

// DocumentConfidence is assigned to every linked document.
const DocumentConfidence = 0.8

var (
	connectorImage = regexp.MustCompile(`(?i)ship|vessel|boat`)
	documentExt    = regexp.MustCompile(`(?i)\.(pdf|doc|docx|xls|xlsx)$`)
)

// PhotoConfidence scores how likely a photo shows v.
func PhotoConfidence(v vessel.Vessel, photoURL, title string, trusted []string) float64 {
	score := 0.5
	name := strings.ToLower(strings.TrimSpace(v.VesselName))
	lowerTitle := strings.ToLower(title)
	if name != "" && strings.Contains(lowerTitle, name) {
		score += 0.3
	}
	if v.IMONumber != "" && (strings.Contains(photoURL, v.IMONumber) || strings.Contains(title, v.IMONumber)) {
		score += 0.2
	}
	if isTrusted(photoURL, trusted) {
		score += 0.1
	}
	return math.Min(math.Round(score*100)/100, 1.0)
}

func isTrusted(rawURL string, trusted []string) bool {
	host := crawler.Host(rawURL)
	for _, t := range trusted {
		t = strings.TrimPrefix(strings.ToLower(t), "www.")
		if host == t || strings.HasSuffix(host, "."+t) {
			return true
		}
	}
	return false
}

// ParseShipSpotting reads photo cards from a shipspotting search page.
func ParseShipSpotting(body []byte, pageURL string, v vessel.Vessel, trusted []string) []Item {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []Item
	doc.Find("div.photo-item, div.photo-card, div.image-container").Each(func(_ int, card *goquery.Selection) {
		img := card.Find("img").First()
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		if src == "" {
			return
		}
		abs, err := crawler.ResolveURL(pageURL, src)
		if err != nil {
			return
		}
		title := img.AttrOr("alt", "")
		if title == "" {
			title = strings.TrimSpace(card.Text())
		}
		out = append(out, Item{
			VesselID:   v.ID,
			MediaType:  vessel.MediaPhoto,
			URL:        abs,
			Title:      title,
			Source:     SourceShipSpotting,
			Confidence: PhotoConfidence(v, abs, title, trusted),
		})
	})
	return out
}

// ParseMaritimeConnector reads vessel images from a maritime-connector ship page.
func ParseMaritimeConnector(body []byte, pageURL string, v vessel.Vessel, trusted []string) []Item {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []Item
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if !connectorImage.MatchString(src) || strings.Contains(strings.ToLower(src), "placeholder") {
			return
		}
		abs, err := crawler.ResolveURL(pageURL, src)
		if err != nil {
			return
		}
		title := img.AttrOr("alt", "")
		if title == "" {
			title = "Vessel " + v.VesselName
		}
		out = append(out, Item{
			VesselID:   v.ID,
			MediaType:  vessel.MediaPhoto,
			URL:        abs,
			Title:      title,
			Source:     SourceMaritimeConnector,
			Confidence: PhotoConfidence(v, abs, title, trusted),
		})
	})
	return out
}

// ParseDocuments lists links to office documents on a page.
func ParseDocuments(body []byte, pageURL string) []Item {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []Item
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		abs, err := crawler.ResolveURL(pageURL, href)
		if err != nil {
			return
		}
		u, err := url.Parse(abs)
		if err != nil || !documentExt.MatchString(u.Path) {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		text := strings.TrimSpace(a.Text())
		title := text
		if title == "" {
			title = path.Base(u.Path)
		}
		out = append(out, Item{
			MediaType:    vessel.MediaDocument,
			DocumentType: ClassifyDocument(text, href),
			URL:          abs,
			Title:        title,
			Source:       SourceVesselPage,
			Confidence:   DocumentConfidence,
		})
	})
	return out
}

// ClassifyDocument guesses a document's type from its link text and href.
func ClassifyDocument(text, href string) vessel.DocumentType {
	s := strings.ToLower(text + " " + href)
	switch {
	case strings.Contains(s, "spec"), strings.Contains(s, "datasheet"), strings.Contains(s, "particular"):
		return vessel.DocSpecification
	case strings.Contains(s, "brochure"):
		return vessel.DocBrochure
	case strings.Contains(s, "manual"):
		return vessel.DocManual
	default:
		return vessel.DocOther
	}
}
