package vessel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFillMissing(t *testing.T) {
	t.Parallel()

	dst := Vessel{
		VesselName:  "SEA PRIDE",
		FlagState:   "Malaysia",
		DataSources: []string{"company_website"},
		PhotoURLs:   []string{"https://a/1.jpg"},
	}
	src := Vessel{
		ID:           "ignored",
		VesselName:   "OTHER",
		FlagState:    "Panama",
		VesselType:   "AHTS",
		GrossTonnage: Int(1678),
		Helideck:     true,
		DataSources:  []string{"vesselfinder", "company_website"},
		PhotoURLs:    []string{"https://a/1.jpg", "https://a/2.jpg"},
	}

	filled := FillMissing(&dst, src)

	require.ElementsMatch(t, []string{"vessel_type", "gross_tonnage", "helideck"}, filled)
	require.Equal(t, "SEA PRIDE", dst.VesselName)
	require.Equal(t, "Malaysia", dst.FlagState)
	require.Equal(t, "AHTS", dst.VesselType)
	require.Equal(t, 1678, *dst.GrossTonnage)
	require.Empty(t, dst.ID)
	require.Equal(t, []string{"company_website", "vesselfinder"}, dst.DataSources)
	require.Equal(t, []string{"https://a/1.jpg", "https://a/2.jpg"}, dst.PhotoURLs)
}

func TestOverlayKeepsIdentity(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	prev := Vessel{ID: "v1", CreatedAt: created, VesselName: "OLD", BuildYear: Int(2008), DataSources: []string{"a"}}
	next := Vessel{VesselName: "NEW", DataSources: []string{"b"}}

	out := Overlay(prev, next)
	require.Equal(t, "v1", out.ID)
	require.Equal(t, created, out.CreatedAt)
	require.Equal(t, "NEW", out.VesselName)
	require.Equal(t, 2008, *out.BuildYear)
	require.Equal(t, []string{"b", "a"}, out.DataSources)
}
