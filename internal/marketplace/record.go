package marketplace

import (
	"fmt"
	"strings"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Listing defaults for synced vessels.
const (
	Category           = "offshore_support"
	Currency           = "USD"
	ListingTypeCharter = "charter"
	ListingStatus      = "active"
	VerificationStatus = "unverified"
)

// Record is a vessel in marketplace form plus its listing.
type Record struct {
	Vessel   vessel.Vessel
	Listing  vessel.Listing
	Category string
}

// Convert normalizes v for the marketplace.
func Convert(v vessel.Vessel) Record {
	out := v
	out.VesselName = CleanName(v.VesselName)
	if out.VesselName == "" {
		out.VesselName = strings.TrimSpace(v.VesselName)
	}
	out.VesselType = VesselType(v.VesselType)
	out.OwnerCompany = strings.TrimSpace(v.OwnerCompany)
	out.OperatorCompany = strings.TrimSpace(v.OperatorCompany)
	status := v.CurrentStatus
	if status == "" {
		status = v.AvailabilityStatus
	}
	out.AvailabilityStatus = Availability(status)

	listing := vessel.Listing{
		ListingStatus:      ListingStatus,
		ListingType:        ListingTypeCharter,
		DailyRate:          v.CharterRateUSDDay,
		Currency:           Currency,
		VerificationStatus: VerificationStatus,
	}
	if len(v.PhotoURLs) > 0 {
		listing.PrimaryPhotoURL = v.PhotoURLs[0]
	}
	return Record{Vessel: out, Listing: listing, Category: Category}
}

// FromFields builds a vessel from loosely typed key/value data such as a
// JSON export. Numeric fields accept strings with units or separators.
func FromFields(fields map[string]any) vessel.Vessel {
	str := func(key string) string {
		switch v := fields[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case nil:
			return ""
		default:
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	var out vessel.Vessel
	out.VesselName = str("vessel_name")
	out.IMONumber = str("imo_number")
	out.MMSINumber = str("mmsi_number")
	out.VesselType = str("vessel_type")
	out.VesselSubtype = str("vessel_subtype")
	out.FlagState = str("flag_state")
	out.HomePort = str("home_port")
	out.OwnerCompany = str("owner_company")
	out.OperatorCompany = str("operator_company")
	out.CurrentStatus = str("current_status")
	out.CurrentLocation = str("current_location")
	out.AvailabilityStatus = str("availability_status")
	out.SourceURL = str("source_url")
	out.LengthOverallM = SafeFloat(str("length_overall_m"))
	out.BeamM = SafeFloat(str("beam_m"))
	out.DeckAreaM2 = SafeFloat(str("deck_area_m2"))
	out.CraneCapacityTonnes = SafeFloat(str("crane_capacity_tonnes"))
	out.CharterRateUSDDay = SafeFloat(str("day_rate_usd"))
	out.GrossTonnage = SafeInt(str("gross_tonnage"))
	out.DeadweightTonnage = SafeInt(str("deadweight_tonnage"))
	out.BuildYear = SafeInt(str("build_year"))
	out.AccommodationPersons = SafeInt(str("accommodation_persons"))
	if q := SafeFloat(str("data_quality_score")); q != nil {
		out.DataQualityScore = *q
	}
	if photos, ok := fields["photos"].([]any); ok {
		for _, p := range photos {
			if s, ok := p.(string); ok && s != "" {
				out.PhotoURLs = append(out.PhotoURLs, s)
			}
		}
	}
	return out
}

// Merge folds incoming into existing. Location, availability and photos are
// always taken. Core particulars are taken only when incoming scores higher.
// Identity and ownership fields only fill gaps.
func Merge(existing, incoming vessel.Vessel) vessel.Vessel {
	out := existing
	if incoming.CurrentLocation != "" {
		out.CurrentLocation = incoming.CurrentLocation
	}
	if incoming.AvailabilityStatus != "" {
		out.AvailabilityStatus = incoming.AvailabilityStatus
	}

	if incoming.DataQualityScore > existing.DataQualityScore {
		// A prefix or casing change alone keeps the stored name so the crawl
		// still matches the row by name.
		if incoming.VesselName != "" && !strings.EqualFold(CleanName(existing.VesselName), incoming.VesselName) {
			out.VesselName = incoming.VesselName
		}
		if incoming.VesselType != "" {
			out.VesselType = incoming.VesselType
		}
		if incoming.LengthOverallM != nil {
			out.LengthOverallM = incoming.LengthOverallM
		}
		if incoming.BeamM != nil {
			out.BeamM = incoming.BeamM
		}
		if incoming.GrossTonnage != nil {
			out.GrossTonnage = incoming.GrossTonnage
		}
		if incoming.BuildYear != nil {
			out.BuildYear = incoming.BuildYear
		}
		if incoming.AccommodationPersons != nil {
			out.AccommodationPersons = incoming.AccommodationPersons
		}
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&out.IMONumber, incoming.IMONumber)
	fill(&out.MMSINumber, incoming.MMSINumber)
	fill(&out.FlagState, incoming.FlagState)
	fill(&out.OwnerCompany, incoming.OwnerCompany)
	fill(&out.OperatorCompany, incoming.OperatorCompany)
	fill(&out.HomePort, incoming.HomePort)

	for _, p := range incoming.PhotoURLs {
		dup := false
		for _, q := range out.PhotoURLs {
			if p == q {
				dup = true
				break
			}
		}
		if !dup {
			out.PhotoURLs = append(out.PhotoURLs, p)
		}
	}
	return out
}
