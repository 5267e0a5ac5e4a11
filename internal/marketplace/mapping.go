// Package marketplace publishes discovered vessels as marketplace listings.
package marketplace

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultVesselType is used when a vessel has no type at all.
const DefaultVesselType = "Offshore Support Vessel"

type typeRule struct {
	substr string
	label  string
}

// Rules are checked in order; the first substring found wins.
var vesselTypes = []typeRule{
	{"supply vessel", "Platform Supply Vessel"},
	{"anchor handling", "Anchor Handling Tug Supply"},
	{"ahts", "Anchor Handling Tug Supply"},
	{"psv", "Platform Supply Vessel"},
	{"osv", "Offshore Support Vessel"},
	{"crew boat", "Crew Transfer Vessel"},
	{"workboat", "Offshore Workboat"},
	{"tug", "Offshore Tug"},
	{"barge", "Offshore Barge"},
	{"diving support", "Diving Support Vessel"},
	{"survey", "Survey Vessel"},
	{"construction", "Construction Support Vessel"},
}

var availability = []typeRule{
	{"available", "available"},
	{"in service", "chartered"},
	{"under charter", "chartered"},
	{"laid up", "unavailable"},
	{"maintenance", "unavailable"},
	{"repair", "unavailable"},
	{"inactive", "unavailable"},
	{"active", "available"},
}

// Availability values written to vessels.availability_status.
const (
	AvailabilityAvailable   = "available"
	AvailabilityChartered   = "chartered"
	AvailabilityUnavailable = "unavailable"
	AvailabilityUnknown     = "unknown"
)

var (
	namePrefix = regexp.MustCompile(`(?i)^(m\.?v\.?|m\.?s\.?|m\.?t\.?)\s*`)
	nonFloat   = regexp.MustCompile(`[^\d.]`)
	nonDigit   = regexp.MustCompile(`[^\d]`)
)

// titleCase builds a Caser per call; Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

// VesselType maps a free-text type to the marketplace taxonomy.
func VesselType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultVesselType
	}
	lower := strings.ToLower(raw)
	for _, r := range vesselTypes {
		if strings.Contains(lower, r.substr) {
			return r.label
		}
	}
	return titleCase(raw)
}

// Availability maps a free-text status to available, chartered,
// unavailable or unknown. "inactive" is checked before "active".
func Availability(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return AvailabilityUnknown
	}
	for _, r := range availability {
		if strings.Contains(lower, r.substr) {
			return r.label
		}
	}
	return AvailabilityUnknown
}

// CleanName strips M.V./M.S./M.T. prefixes, collapses whitespace and
// title-cases the result.
func CleanName(name string) string {
	name = namePrefix.ReplaceAllString(strings.TrimSpace(name), "")
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return titleCase(name)
}

// SafeFloat parses the digits and dots of s, or returns nil.
func SafeFloat(s string) *float64 {
	cleaned := nonFloat.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

// SafeInt parses the digits of s, or returns nil.
func SafeInt(s string) *int {
	cleaned := nonDigit.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil
	}
	return &n
}
