package imo

import (
	"math"
	"time"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

// DataSource tags vessels enriched by an IMO lookup.
const DataSource = "imo_lookup"

// Result is the merged outcome of an IMO lookup across sources.
type Result struct {
	IMONumber       string    `json:"imo_number"`
	VesselName      string    `json:"vessel_name,omitempty"`
	MMSI            string    `json:"mmsi_number,omitempty"`
	CallSign        string    `json:"call_sign,omitempty"`
	FlagState       string    `json:"flag_state,omitempty"`
	VesselType      string    `json:"vessel_type,omitempty"`
	BuildYear       *int      `json:"build_year,omitempty"`
	LengthOverallM  *float64  `json:"length_overall_m,omitempty"`
	BeamM           *float64  `json:"beam_m,omitempty"`
	GrossTonnage    *int      `json:"gross_tonnage,omitempty"`
	Deadweight      *int      `json:"deadweight_tonnage,omitempty"`
	Owner           string    `json:"owner_company,omitempty"`
	Operator        string    `json:"operator_company,omitempty"`
	CurrentStatus   string    `json:"current_status,omitempty"`
	CurrentLocation string    `json:"current_location,omitempty"`
	Photos          []string  `json:"photos,omitempty"`
	Documents       []string  `json:"documents,omitempty"`
	Sources         []string  `json:"sources,omitempty"`
	Confidence      float64   `json:"confidence_score"`
	LookedUpAt      time.Time `json:"last_updated"`
}

// Empty reports whether no field beyond the IMO itself is known.
func (r Result) Empty() bool {
	return r.VesselName == "" && r.MMSI == "" && r.CallSign == "" &&
		r.FlagState == "" && r.VesselType == "" && r.BuildYear == nil &&
		r.LengthOverallM == nil && r.BeamM == nil && r.GrossTonnage == nil &&
		r.Deadweight == nil && r.Owner == "" && r.Operator == "" &&
		r.CurrentStatus == "" && r.CurrentLocation == "" &&
		len(r.Photos) == 0 && len(r.Documents) == 0
}

// merge records source and fills every scalar still empty in r.
func (r *Result) merge(src Result, source string) {
	r.Sources = appendUnique(r.Sources, source)
	r.Photos = appendUnique(r.Photos, src.Photos...)
	r.Documents = appendUnique(r.Documents, src.Documents...)

	fillString(&r.VesselName, src.VesselName)
	fillString(&r.MMSI, src.MMSI)
	fillString(&r.CallSign, src.CallSign)
	fillString(&r.FlagState, src.FlagState)
	fillString(&r.VesselType, src.VesselType)
	fillString(&r.Owner, src.Owner)
	fillString(&r.Operator, src.Operator)
	fillString(&r.CurrentStatus, src.CurrentStatus)
	fillString(&r.CurrentLocation, src.CurrentLocation)
	if r.BuildYear == nil {
		r.BuildYear = src.BuildYear
	}
	if r.LengthOverallM == nil {
		r.LengthOverallM = src.LengthOverallM
	}
	if r.BeamM == nil {
		r.BeamM = src.BeamM
	}
	if r.GrossTonnage == nil {
		r.GrossTonnage = src.GrossTonnage
	}
	if r.Deadweight == nil {
		r.Deadweight = src.Deadweight
	}
}

// confidence weighs the fields present by the mean reliability of the
// sources that contributed them.
func confidence(r Result, reliabilities []float64) float64 {
	if len(reliabilities) == 0 {
		return 0
	}
	score := 0.0
	add := func(present bool, weight float64) {
		if present {
			score += weight
		}
	}
	add(r.VesselName != "", 0.2)
	add(r.VesselType != "", 0.15)
	add(r.FlagState != "", 0.1)
	add(r.BuildYear != nil, 0.1)
	add(r.GrossTonnage != nil, 0.1)
	add(r.LengthOverallM != nil, 0.1)
	add(r.Owner != "", 0.1)
	add(r.MMSI != "", 0.1)
	add(len(r.Photos) > 0, 0.05)

	sum := 0.0
	for _, rel := range reliabilities {
		sum += rel
	}
	score *= sum / float64(len(reliabilities))
	return math.Min(math.Round(score*1000)/1000, 1.0)
}

// Vessel converts r to a partial vessel record suitable for FillMissing.
func (r Result) Vessel() vessel.Vessel {
	v := vessel.Vessel{
		VesselName:        r.VesselName,
		IMONumber:         r.IMONumber,
		MMSINumber:        r.MMSI,
		CallSign:          r.CallSign,
		FlagState:         r.FlagState,
		VesselType:        r.VesselType,
		BuildYear:         r.BuildYear,
		LengthOverallM:    r.LengthOverallM,
		BeamM:             r.BeamM,
		GrossTonnage:      r.GrossTonnage,
		DeadweightTonnage: r.Deadweight,
		OwnerCompany:      r.Owner,
		OperatorCompany:   r.Operator,
		CurrentStatus:     r.CurrentStatus,
		CurrentLocation:   r.CurrentLocation,
		PhotoURLs:         r.Photos,
	}
	if len(r.Sources) > 0 {
		v.DataSources = []string{DataSource}
	}
	return v
}

func fillString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range dst {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
