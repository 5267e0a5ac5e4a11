package extract

import (
	"regexp"
	"strings"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

type featureRule struct {
	name    string
	pattern *regexp.Regexp
}

func keywordRule(name string, keywords ...string) featureRule {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return featureRule{
		name:    name,
		pattern: regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

var featureRules = []featureRule{
	keywordRule("dynamic_positioning", "dp", "dynamic positioning", "dps"),
	keywordRule("helicopter_deck", "helicopter deck", "helideck", "heli deck"),
	keywordRule("crane", "crane", "deck crane", "lifting"),
	keywordRule("moon_pool", "moon pool", "moonpool"),
	keywordRule("diving_support", "diving support", "dive support", "saturation diving"),
	keywordRule("fire_fighting", "fire fighting", "firefighting", "fifi"),
	keywordRule("anchor_handling", "anchor handling", "ahts", "anchor handler"),
	keywordRule("supply_vessel", "supply vessel", "platform supply", "psv"),
	keywordRule("accommodation", "accommodation", "berths", "crew quarters"),
}

// Feature attributes shared by every keyword match.
const (
	FeatureCategory   = "capability"
	FeatureConfidence = 0.7
	FeatureSource     = "extracted"
)

// Features tags the capabilities mentioned in text.
func Features(text string) []vessel.Feature {
	lower := strings.ToLower(text)
	var out []vessel.Feature
	for _, rule := range featureRules {
		if rule.pattern.MatchString(lower) {
			out = append(out, vessel.Feature{
				Category:     FeatureCategory,
				FeatureName:  rule.name,
				FeatureValue: "true",
				Confidence:   FeatureConfidence,
				SourceType:   FeatureSource,
			})
		}
	}
	return out
}
