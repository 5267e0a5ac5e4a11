package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

type columnKind int

const (
	kindText columnKind = iota
	kindValue
	kindBool
	kindSources
	kindScore
)

type column struct {
	name  string
	kind  columnKind
	field func(v *vessel.Vessel) any
}

// vesselColumns lists every writable vessels column in table order.
var vesselColumns = []column{
	{"vessel_name", kindText, func(v *vessel.Vessel) any { return &v.VesselName }},
	{"imo_number", kindText, func(v *vessel.Vessel) any { return &v.IMONumber }},
	{"mmsi_number", kindText, func(v *vessel.Vessel) any { return &v.MMSINumber }},
	{"call_sign", kindText, func(v *vessel.Vessel) any { return &v.CallSign }},
	{"flag_state", kindText, func(v *vessel.Vessel) any { return &v.FlagState }},
	{"port_of_registry", kindText, func(v *vessel.Vessel) any { return &v.PortOfRegistry }},
	{"vessel_type", kindText, func(v *vessel.Vessel) any { return &v.VesselType }},
	{"vessel_subtype", kindText, func(v *vessel.Vessel) any { return &v.VesselSubtype }},
	{"class_society", kindText, func(v *vessel.Vessel) any { return &v.ClassSociety }},
	{"class_notation", kindText, func(v *vessel.Vessel) any { return &v.ClassNotation }},
	{"length_overall_m", kindValue, func(v *vessel.Vessel) any { return &v.LengthOverallM }},
	{"beam_m", kindValue, func(v *vessel.Vessel) any { return &v.BeamM }},
	{"draft_m", kindValue, func(v *vessel.Vessel) any { return &v.DraftM }},
	{"depth_m", kindValue, func(v *vessel.Vessel) any { return &v.DepthM }},
	{"gross_tonnage", kindValue, func(v *vessel.Vessel) any { return &v.GrossTonnage }},
	{"net_tonnage", kindValue, func(v *vessel.Vessel) any { return &v.NetTonnage }},
	{"deadweight_tonnage", kindValue, func(v *vessel.Vessel) any { return &v.DeadweightTonnage }},
	{"build_year", kindValue, func(v *vessel.Vessel) any { return &v.BuildYear }},
	{"builder", kindText, func(v *vessel.Vessel) any { return &v.Builder }},
	{"build_country", kindText, func(v *vessel.Vessel) any { return &v.BuildCountry }},
	{"main_engine_type", kindText, func(v *vessel.Vessel) any { return &v.MainEngineType }},
	{"main_engine_power_kw", kindValue, func(v *vessel.Vessel) any { return &v.MainEnginePowerKW }},
	{"propulsion_type", kindText, func(v *vessel.Vessel) any { return &v.PropulsionType }},
	{"max_speed_knots", kindValue, func(v *vessel.Vessel) any { return &v.MaxSpeedKnots }},
	{"service_speed_knots", kindValue, func(v *vessel.Vessel) any { return &v.ServiceSpeedKnots }},
	{"fuel_capacity_m3", kindValue, func(v *vessel.Vessel) any { return &v.FuelCapacityM3 }},
	{"dynamic_positioning_class", kindText, func(v *vessel.Vessel) any { return &v.DynamicPositioningClass }},
	{"deck_area_m2", kindValue, func(v *vessel.Vessel) any { return &v.DeckAreaM2 }},
	{"deck_load_tonnes", kindValue, func(v *vessel.Vessel) any { return &v.DeckLoadTonnes }},
	{"bollard_pull_tonnes", kindValue, func(v *vessel.Vessel) any { return &v.BollardPullTonnes }},
	{"crane_capacity_tonnes", kindValue, func(v *vessel.Vessel) any { return &v.CraneCapacityTonnes }},
	{"helideck", kindBool, func(v *vessel.Vessel) any { return &v.Helideck }},
	{"fire_fighting_class", kindText, func(v *vessel.Vessel) any { return &v.FireFightingClass }},
	{"accommodation_persons", kindValue, func(v *vessel.Vessel) any { return &v.AccommodationPersons }},
	{"moon_pool", kindBool, func(v *vessel.Vessel) any { return &v.MoonPool }},
	{"rov_capable", kindBool, func(v *vessel.Vessel) any { return &v.ROVCapable }},
	{"current_status", kindText, func(v *vessel.Vessel) any { return &v.CurrentStatus }},
	{"current_location", kindText, func(v *vessel.Vessel) any { return &v.CurrentLocation }},
	{"availability_status", kindText, func(v *vessel.Vessel) any { return &v.AvailabilityStatus }},
	{"charter_rate_usd_day", kindValue, func(v *vessel.Vessel) any { return &v.CharterRateUSDDay }},
	{"home_port", kindText, func(v *vessel.Vessel) any { return &v.HomePort }},
	{"certificate_expiry", kindValue, func(v *vessel.Vessel) any { return &v.CertificateExpiry }},
	{"last_dry_dock", kindValue, func(v *vessel.Vessel) any { return &v.LastDryDock }},
	{"next_survey_due", kindValue, func(v *vessel.Vessel) any { return &v.NextSurveyDue }},
	{"owner_company_id", kindValue, func(v *vessel.Vessel) any { return &v.OwnerCompanyID }},
	{"operator_company_id", kindValue, func(v *vessel.Vessel) any { return &v.OperatorCompanyID }},
	{"owner_company", kindText, func(v *vessel.Vessel) any { return &v.OwnerCompany }},
	{"operator_company", kindText, func(v *vessel.Vessel) any { return &v.OperatorCompany }},
	{"data_sources", kindSources, func(v *vessel.Vessel) any { return &v.DataSources }},
	{"data_quality_score", kindScore, func(v *vessel.Vessel) any { return &v.DataQualityScore }},
	{"source_url", kindText, func(v *vessel.Vessel) any { return &v.SourceURL }},
	{"last_verified_at", kindValue, func(v *vessel.Vessel) any { return &v.LastVerifiedAt }},
}

var (
	vesselSelect  string
	vesselInsert  string
	vesselOverlay string
	vesselReplace string
)

func init() {
	selectCols := []string{"id::text"}
	insertCols := make([]string, 0, len(vesselColumns))
	insertArgs := make([]string, 0, len(vesselColumns))
	overlay := make([]string, 0, len(vesselColumns))
	replace := make([]string, 0, len(vesselColumns))
	for i, c := range vesselColumns {
		arg := fmt.Sprintf("$%d", i+2)
		switch c.name {
		case "owner_company_id", "operator_company_id":
			selectCols = append(selectCols, c.name+"::text")
		default:
			if c.kind == kindText {
				selectCols = append(selectCols, fmt.Sprintf("COALESCE(%s, '')", c.name))
			} else {
				selectCols = append(selectCols, c.name)
			}
		}
		insertCols = append(insertCols, c.name)
		insertArgs = append(insertArgs, fmt.Sprintf("$%d", i+1))
		replace = append(replace, fmt.Sprintf("%s = %s", c.name, arg))
		switch c.kind {
		case kindBool:
			overlay = append(overlay, fmt.Sprintf("%s = %s OR %s", c.name, c.name, arg))
		case kindSources:
			overlay = append(overlay, fmt.Sprintf(
				"%s = ARRAY(SELECT DISTINCT s FROM unnest(%s || %s::text[]) AS s)", c.name, c.name, arg))
		case kindScore:
			overlay = append(overlay, fmt.Sprintf(
				"%s = CASE WHEN %s::numeric > 0 THEN %s::numeric ELSE %s END", c.name, arg, arg, c.name))
		default:
			overlay = append(overlay, fmt.Sprintf("%s = COALESCE(%s, %s)", c.name, arg, c.name))
		}
	}
	selectCols = append(selectCols, "created_at", "updated_at")

	vesselSelect = "SELECT " + strings.Join(selectCols, ", ") + " FROM vessels"
	vesselInsert = fmt.Sprintf("INSERT INTO vessels (%s) VALUES (%s) RETURNING id::text, created_at, updated_at",
		strings.Join(insertCols, ", "), strings.Join(insertArgs, ", "))
	vesselOverlay = fmt.Sprintf("UPDATE vessels SET %s WHERE id = $1::uuid RETURNING %s",
		strings.Join(overlay, ", "), strings.Join(selectCols, ", "))
	vesselReplace = fmt.Sprintf("UPDATE vessels SET %s WHERE id = $1::uuid RETURNING created_at, updated_at",
		strings.Join(replace, ", "))
}

func vesselArgs(v *vessel.Vessel) []any {
	if v.DataSources == nil {
		v.DataSources = []string{}
	}
	args := make([]any, 0, len(vesselColumns))
	for _, c := range vesselColumns {
		ptr := c.field(v)
		if c.kind == kindText {
			args = append(args, nullString(*ptr.(*string)))
			continue
		}
		args = append(args, ptr)
	}
	return args
}

func scanVessel(row pgx.Row) (vessel.Vessel, error) {
	var v vessel.Vessel
	dest := make([]any, 0, len(vesselColumns)+3)
	dest = append(dest, &v.ID)
	for _, c := range vesselColumns {
		dest = append(dest, c.field(&v))
	}
	dest = append(dest, &v.CreatedAt, &v.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return vessel.Vessel{}, err
	}
	return v, nil
}

// UpsertVessel merges into an existing row found by IMO (or name plus owner)
// and inserts otherwise.
func (r *Repository) UpsertVessel(ctx context.Context, v *vessel.Vessel) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := r.FindVessel(ctx, store.VesselLookup{IMO: v.IMONumber, Name: v.VesselName, Owner: v.OwnerCompany})
		switch {
		case err == nil:
			args := append([]any{existing.ID}, vesselArgs(v)...)
			merged, err := scanVessel(r.db.QueryRow(ctx, vesselOverlay, args...))
			if err != nil {
				return false, fmt.Errorf("merge vessel: %w", err)
			}
			merged.PhotoURLs = v.PhotoURLs
			*v = merged
			return false, nil
		case !errors.Is(err, store.ErrNotFound):
			return false, err
		}

		err = r.db.QueryRow(ctx, vesselInsert, vesselArgs(v)...).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
		if err == nil {
			return true, nil
		}
		if !isUniqueViolation(err) {
			return false, fmt.Errorf("insert vessel: %w", err)
		}
		// Lost a race on imo_number; the next pass merges instead.
	}
	return false, fmt.Errorf("upsert vessel %q: %w", v.VesselName, store.ErrConflict)
}

// SaveVessel overwrites every column of an existing row.
func (r *Repository) SaveVessel(ctx context.Context, v *vessel.Vessel) error {
	args := append([]any{v.ID}, vesselArgs(v)...)
	err := r.db.QueryRow(ctx, vesselReplace, args...).Scan(&v.CreatedAt, &v.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return store.ErrConflict
	default:
		return mapNoRows(err, "save vessel")
	}
}

// GetVessel loads one vessel by id.
func (r *Repository) GetVessel(ctx context.Context, id string) (vessel.Vessel, error) {
	v, err := scanVessel(r.db.QueryRow(ctx, vesselSelect+" WHERE id = $1::uuid", id))
	if err != nil {
		return vessel.Vessel{}, mapNoRows(err, "get vessel")
	}
	return v, nil
}

// FindVessel resolves by IMO, MMSI, then name plus owner.
func (r *Repository) FindVessel(ctx context.Context, l store.VesselLookup) (vessel.Vessel, error) {
	type lookup struct {
		where string
		args  []any
	}
	var lookups []lookup
	if l.IMO != "" {
		lookups = append(lookups, lookup{"imo_number = $1", []any{l.IMO}})
	}
	if l.MMSI != "" {
		lookups = append(lookups, lookup{"mmsi_number = $1", []any{l.MMSI}})
	}
	if l.Name != "" {
		where := "upper(vessel_name) = upper($1) AND upper(COALESCE(owner_company, '')) = upper($2)"
		if l.IMO != "" {
			where += " AND imo_number IS NULL"
		}
		lookups = append(lookups, lookup{where, []any{l.Name, l.Owner}})
	}
	for _, p := range lookups {
		v, err := scanVessel(r.db.QueryRow(ctx, vesselSelect+" WHERE "+p.where+" LIMIT 1", p.args...))
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return vessel.Vessel{}, fmt.Errorf("find vessel: %w", err)
		}
	}
	return vessel.Vessel{}, store.ErrNotFound
}

const vesselFilterWhere = `
WHERE ($1::text IS NULL OR vessel_name ILIKE '%' || $1 || '%'
       OR owner_company ILIKE '%' || $1 || '%'
       OR imo_number ILIKE '%' || $1 || '%')
  AND ($2::text IS NULL OR lower(vessel_type) = lower($2))`

// ListVessels filters, orders by created_at desc and paginates.
func (r *Repository) ListVessels(ctx context.Context, f store.VesselFilter) ([]vessel.Vessel, int, error) {
	search, vesselType := nullString(f.Search), nullString(f.VesselType)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM vessels"+vesselFilterWhere, search, vesselType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vessels: %w", err)
	}

	rows, err := r.db.Query(ctx,
		vesselSelect+vesselFilterWhere+" ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		search, vesselType, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list vessels: %w", err)
	}
	defer rows.Close()
	out, err := collectVessels(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AllVessels returns every vessel, newest first.
func (r *Repository) AllVessels(ctx context.Context) ([]vessel.Vessel, error) {
	rows, err := r.db.Query(ctx, vesselSelect+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list all vessels: %w", err)
	}
	defer rows.Close()
	return collectVessels(rows)
}

func collectVessels(rows pgx.Rows) ([]vessel.Vessel, error) {
	out := []vessel.Vessel{}
	for rows.Next() {
		v, err := scanVessel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vessel row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vessel rows: %w", err)
	}
	return out, nil
}

// UpdateQualityScore sets data_quality_score.
func (r *Repository) UpdateQualityScore(ctx context.Context, id string, score float64) error {
	tag, err := r.db.Exec(ctx, "UPDATE vessels SET data_quality_score = $1 WHERE id = $2::uuid", score, id)
	if err != nil {
		return fmt.Errorf("update quality score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
