package vessel

import "math"

type qualityWeight struct {
	weight  float64
	present func(v *Vessel) bool
}

var qualityWeights = []qualityWeight{
	{0.15, func(v *Vessel) bool { return v.VesselName != "" }},
	{0.15, func(v *Vessel) bool { return v.IMONumber != "" }},
	{0.10, func(v *Vessel) bool { return v.VesselType != "" }},
	{0.10, func(v *Vessel) bool { return v.OwnerCompany != "" }},
	{0.08, func(v *Vessel) bool { return v.BuildYear != nil }},
	{0.08, func(v *Vessel) bool { return v.LengthOverallM != nil }},
	{0.08, func(v *Vessel) bool { return v.GrossTonnage != nil }},
	{0.06, func(v *Vessel) bool { return v.FlagState != "" }},
	{0.04, func(v *Vessel) bool { return v.MMSINumber != "" }},
	{0.04, func(v *Vessel) bool { return v.BeamM != nil }},
	{0.04, func(v *Vessel) bool { return v.MainEnginePowerKW != nil }},
	{0.04, func(v *Vessel) bool { return v.AccommodationPersons != nil }},
	{0.04, func(v *Vessel) bool { return v.CurrentStatus != "" }},
}

// QualityScore returns the weighted completeness of v in [0, 1], rounded to
// three decimals.
func QualityScore(v *Vessel) float64 {
	if v == nil {
		return 0
	}
	var score, total float64
	for _, w := range qualityWeights {
		total += w.weight
		if w.present(v) {
			score += w.weight
		}
	}
	if total == 0 {
		return 0
	}
	return math.Round(score/total*1000) / 1000
}
