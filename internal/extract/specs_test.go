package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

const datasheet = `Length Overall: 70.0 m
Breadth: 16.8m
Draught 6.2 m
Gross Tonnage: 2,950
DWT 3,200
Engine Power: 3,840 kW
Year Built: 2010
Flag: Malaysia
Classification: ABS`

func TestSpecifications(t *testing.T) {
	t.Parallel()

	require.Equal(t, map[string]any{
		"length_overall": 70.0,
		"beam":           16.8,
		"draft":          6.2,
		"gross_tonnage":  2950,
		"deadweight":     3200,
		"engine_power":   3840,
		"build_year":     2010,
		"flag":           "malaysia",
		"class_society":  "abs",
	}, Specifications(datasheet))
}

func TestSpecifications_FlagStateBeforeFlag(t *testing.T) {
	t.Parallel()

	got := Specifications("Flag State: Marshall Islands\nLOA: 45 m")
	require.Equal(t, "marshall islands", got["flag"])
	require.Equal(t, 45.0, got["length_overall"])
}

func TestSpecifications_Empty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Specifications("   "))
	require.Empty(t, Specifications("no particulars listed"))
}

func TestApplySpecifications_FillsOnlyGaps(t *testing.T) {
	t.Parallel()

	v := vessel.Vessel{VesselName: "Sea Lion", BeamM: vessel.Float(15)}
	filled := ApplySpecifications(&v, Specifications(datasheet))

	require.InDelta(t, 15, *v.BeamM, 1e-9)
	require.InDelta(t, 70, *v.LengthOverallM, 1e-9)
	require.Equal(t, "Malaysia", v.FlagState)
	require.Equal(t, "ABS", v.ClassSociety)
	require.Equal(t, 3840, *v.MainEnginePowerKW)
	require.Contains(t, filled, "length_overall_m")
	require.NotContains(t, filled, "beam_m")
}

func TestFeatures(t *testing.T) {
	t.Parallel()

	got := Features("Fitted with DP-2, helideck and FiFi 1. Accommodation for 60 persons.")
	names := make([]string, 0, len(got))
	for _, f := range got {
		names = append(names, f.FeatureName)
		require.Equal(t, FeatureCategory, f.Category)
		require.Equal(t, "true", f.FeatureValue)
		require.InDelta(t, FeatureConfidence, f.Confidence, 1e-9)
		require.Equal(t, FeatureSource, f.SourceType)
	}
	require.Equal(t, []string{"dynamic_positioning", "helicopter_deck", "fire_fighting", "accommodation"}, names)
}

func TestFeatures_WordBoundaries(t *testing.T) {
	t.Parallel()

	require.Empty(t, Features("the mudpump was replaced, see tugboat-free zone"))
}
