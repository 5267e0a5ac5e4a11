package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

// SourceCompanyWebsite tags records found on a member's own site.
const SourceCompanyWebsite = "company_website"

var (
	divClass   = regexp.MustCompile(`(?i)vessel|ship|fleet|boat|marine|offshore`)
	tableClass = regexp.MustCompile(`(?i)vessel|fleet`)
	liClass    = regexp.MustCompile(`(?i)vessel|ship`)

	tableKeywords = []string{"vessel", "ship", "imo", "mmsi"}

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)vessel\s+name\s*:?\s*([^\n,]+)`),
		regexp.MustCompile(`(?i)ship\s+name\s*:?\s*([^\n,]+)`),
		regexp.MustCompile(`(?i)name\s*:?\s*([^\n,]+)`),
		regexp.MustCompile(`(?im)^([A-Z][A-Z\s\d]+?)(?:\n|$)`),
	}
	imoPattern    = regexp.MustCompile(`(?i)IMO\s*#?:?\s*(\d{7})`)
	mmsiPattern   = regexp.MustCompile(`(?i)MMSI\s*#?:?\s*(\d{9})`)
	yearPattern   = regexp.MustCompile(`(?i)(?:built|build\s+year|year)\s*:?\s*(\d{4})`)
	lengthPattern = regexp.MustCompile(`(?i)length\s*:?\s*([\d.]+)\s*m`)

	// The keyword prefix is case-insensitive, the captured name is not.
	textPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i:m\.?v\.?|vessel|ship)\s+([A-Z][A-Z\s\d]+?)(?:\n|\.|\s-)`),
		regexp.MustCompile(`(?i:IMO)\s*:?\s*\d{7}[^\n]*?([A-Z][A-Z\s]+)`),
	}
)

// Vessels extracts vessel records from an HTML page that belongs to company.
func Vessels(body []byte, pageURL string, company vessel.Company) ([]vessel.Vessel, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	var found []vessel.Vessel
	for _, el := range candidateElements(doc) {
		if v, ok := parseElement(Text(el), pageURL, company); ok {
			found = append(found, v)
		}
	}
	if len(found) == 0 {
		found = fromText(Text(doc.Selection), pageURL, company)
	}
	return dedupe(found), nil
}

func candidateElements(doc *goquery.Document) []*goquery.Selection {
	var out []*goquery.Selection
	collect := func(selector string, class *regexp.Regexp) {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if c, ok := s.Attr("class"); ok && class.MatchString(c) {
				out = append(out, s)
			}
		})
	}
	collect("div[class]", divClass)
	collect("table[class]", tableClass)
	collect("li[class]", liClass)

	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(s.Text())
		for _, kw := range tableKeywords {
			if strings.Contains(text, kw) {
				out = append(out, s)
				return
			}
		}
	})
	return out
}

func parseElement(text, pageURL string, company vessel.Company) (vessel.Vessel, bool) {
	v := newRecord(pageURL, company)
	for _, p := range namePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			v.VesselName = strings.TrimSpace(m[1])
			break
		}
	}
	if m := imoPattern.FindStringSubmatch(text); m != nil {
		v.IMONumber = m[1]
	}
	if m := mmsiPattern.FindStringSubmatch(text); m != nil {
		v.MMSINumber = m[1]
	}
	if m := yearPattern.FindStringSubmatch(text); m != nil {
		if year, err := strconv.Atoi(m[1]); err == nil {
			v.BuildYear = vessel.Int(year)
		}
	}
	if m := lengthPattern.FindStringSubmatch(text); m != nil {
		if length, err := strconv.ParseFloat(m[1], 64); err == nil {
			v.LengthOverallM = vessel.Float(length)
		}
	}
	if v.VesselName == "" && v.IMONumber == "" {
		return vessel.Vessel{}, false
	}
	return v, true
}

func fromText(text, pageURL string, company vessel.Company) []vessel.Vessel {
	var out []vessel.Vessel
	for _, p := range textPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			if len(name) <= 3 {
				continue
			}
			v := newRecord(pageURL, company)
			v.VesselName = name
			out = append(out, v)
		}
	}
	return out
}

func newRecord(pageURL string, company vessel.Company) vessel.Vessel {
	return vessel.Vessel{
		OwnerCompany: company.Name,
		SourceURL:    pageURL,
		DataSources:  []string{SourceCompanyWebsite},
	}
}

// dedupe keeps the first record per IMO, or per upper-cased name when the
// IMO is unknown. Later duplicates only fill gaps in the first.
func dedupe(in []vessel.Vessel) []vessel.Vessel {
	index := make(map[string]int, len(in))
	out := make([]vessel.Vessel, 0, len(in))
	for _, v := range in {
		key := "name:" + strings.ToUpper(v.VesselName)
		if v.IMONumber != "" {
			key = "imo:" + v.IMONumber
		}
		if i, ok := index[key]; ok {
			vessel.FillMissing(&out[i], v)
			continue
		}
		index[key] = len(out)
		out = append(out, v)
	}
	return out
}
