package extract

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

type specKind int

const (
	specFloat specKind = iota
	specInt
	specString
)

type specField struct {
	name     string
	kind     specKind
	patterns []*regexp.Regexp
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Patterns run against lowercased text.
var specFields = []specField{
	{"length_overall", specFloat, patterns(
		`length\s+overall\s*:?\s*([\d.]+)\s*m`,
		`loa\s*:?\s*([\d.]+)\s*m`,
		`overall\s+length\s*:?\s*([\d.]+)\s*m`,
	)},
	{"beam", specFloat, patterns(
		`beam\s*:?\s*([\d.]+)\s*m`,
		`breadth\s*:?\s*([\d.]+)\s*m`,
		`width\s*:?\s*([\d.]+)\s*m`,
	)},
	{"draft", specFloat, patterns(
		`draft\s*:?\s*([\d.]+)\s*m`,
		`draught\s*:?\s*([\d.]+)\s*m`,
		`design\s+draft\s*:?\s*([\d.]+)\s*m`,
	)},
	{"gross_tonnage", specInt, patterns(
		`gross\s+tonnage\s*:?\s*([\d,]+)`,
		`\bgt\s*:?\s*([\d,]+)`,
		`\bgrt\s*:?\s*([\d,]+)`,
	)},
	{"deadweight", specInt, patterns(
		`deadweight\s*:?\s*([\d,]+)`,
		`\bdwt\s*:?\s*([\d,]+)`,
		`dead\s+weight\s*:?\s*([\d,]+)`,
	)},
	{"engine_power", specInt, patterns(
		`main\s+engine\s*:?\s*([\d,]+)\s*kw`,
		`power\s*:?\s*([\d,]+)\s*kw`,
		`engine\s+power\s*:?\s*([\d,]+)\s*kw`,
	)},
	{"build_year", specInt, patterns(
		`built\s*:?\s*(\d{4})`,
		`build\s+year\s*:?\s*(\d{4})`,
		`year\s+built\s*:?\s*(\d{4})`,
	)},
	{"flag", specString, patterns(
		`flag\s+state\s*:?\s*([a-z][a-z ]*)`,
		`flag\s*:?\s*([a-z][a-z ]*)`,
	)},
	{"class_society", specString, patterns(
		`classification\s*(?:society)?\s*:?\s*([a-z][a-z &]*)`,
		`class\s+society\s*:?\s*([a-z][a-z &]*)`,
		`class\s*:?\s*([a-z][a-z &]*)`,
		`certified\s+by\s*:?\s*([a-z][a-z &]*)`,
	)},
}

// Specifications parses vessel particulars out of free text. The first
// matching pattern per field wins; values that fail to convert are skipped.
func Specifications(text string) map[string]any {
	specs := make(map[string]any)
	if strings.TrimSpace(text) == "" {
		return specs
	}
	lower := strings.ToLower(text)
	for _, field := range specFields {
		for _, p := range field.patterns {
			m := p.FindStringSubmatch(lower)
			if m == nil {
				continue
			}
			value := strings.TrimSpace(m[1])
			switch field.kind {
			case specFloat:
				if f, err := strconv.ParseFloat(strings.TrimRight(value, "."), 64); err == nil {
					specs[field.name] = f
				}
			case specInt:
				if n, err := strconv.Atoi(strings.ReplaceAll(value, ",", "")); err == nil {
					specs[field.name] = n
				}
			case specString:
				if value != "" {
					specs[field.name] = value
				}
			}
			break
		}
	}
	return specs
}

// ApplySpecifications copies parsed particulars onto v where v has no value.
func ApplySpecifications(v *vessel.Vessel, specs map[string]any) []string {
	var src vessel.Vessel
	if f, ok := specs["length_overall"].(float64); ok {
		src.LengthOverallM = vessel.Float(f)
	}
	if f, ok := specs["beam"].(float64); ok {
		src.BeamM = vessel.Float(f)
	}
	if f, ok := specs["draft"].(float64); ok {
		src.DraftM = vessel.Float(f)
	}
	if n, ok := specs["gross_tonnage"].(int); ok {
		src.GrossTonnage = vessel.Int(n)
	}
	if n, ok := specs["deadweight"].(int); ok {
		src.DeadweightTonnage = vessel.Int(n)
	}
	if n, ok := specs["engine_power"].(int); ok {
		src.MainEnginePowerKW = vessel.Int(n)
	}
	if n, ok := specs["build_year"].(int); ok {
		src.BuildYear = vessel.Int(n)
	}
	if s, ok := specs["flag"].(string); ok {
		src.FlagState = titleCase(s)
	}
	if s, ok := specs["class_society"].(string); ok {
		src.ClassSociety = strings.ToUpper(s)
	}
	return vessel.FillMissing(v, src)
}

// A Caser is stateful, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(s), " "))
}
