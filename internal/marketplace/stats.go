package marketplace

import (
	"context"
	"fmt"
	"math"
)

// Stats describes the marketplace inventory.
type Stats struct {
	TotalVessels     int            `json:"total_vessels"`
	AvailableVessels int            `json:"available_vessels"`
	ActiveListings   int            `json:"active_listings"`
	FeaturedListings int            `json:"featured_listings"`
	VesselTypes      map[string]int `json:"vessel_types"`
	Availability     map[string]int `json:"availability"`
	AvgDataQuality   float64        `json:"avg_data_quality"`
}

// Stats aggregates vessel and listing counts.
func (s *Syncer) Stats(ctx context.Context) (Stats, error) {
	vessels, err := s.repo.AllVessels(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("load vessels: %w", err)
	}
	counts, err := s.repo.ListingCounts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count listings: %w", err)
	}
	out := Stats{
		TotalVessels:     len(vessels),
		ActiveListings:   counts.Active,
		FeaturedListings: counts.Featured,
		VesselTypes:      map[string]int{},
		Availability:     map[string]int{},
	}
	var quality float64
	for _, v := range vessels {
		out.VesselTypes[VesselType(v.VesselType)]++
		status := v.AvailabilityStatus
		if status == "" {
			status = AvailabilityUnknown
		}
		out.Availability[status]++
		if status == AvailabilityAvailable {
			out.AvailableVessels++
		}
		quality += v.DataQualityScore
	}
	if len(vessels) > 0 {
		out.AvgDataQuality = math.Round(quality/float64(len(vessels))*1000) / 1000
	}
	return out, nil
}
