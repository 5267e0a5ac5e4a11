package vessel

import (
	"strings"
	"time"
)

// Vessel is the flat vessel record. Optional numerics are pointers so that
// "unknown" stays distinct from zero.
type Vessel struct {
	ID string `json:"id" db:"id"`

	VesselName     string `json:"vessel_name" db:"vessel_name"`
	IMONumber      string `json:"imo_number,omitempty" db:"imo_number"`
	MMSINumber     string `json:"mmsi_number,omitempty" db:"mmsi_number"`
	CallSign       string `json:"call_sign,omitempty" db:"call_sign"`
	FlagState      string `json:"flag_state,omitempty" db:"flag_state"`
	PortOfRegistry string `json:"port_of_registry,omitempty" db:"port_of_registry"`

	VesselType    string `json:"vessel_type,omitempty" db:"vessel_type"`
	VesselSubtype string `json:"vessel_subtype,omitempty" db:"vessel_subtype"`
	ClassSociety  string `json:"class_society,omitempty" db:"class_society"`
	ClassNotation string `json:"class_notation,omitempty" db:"class_notation"`

	LengthOverallM *float64 `json:"length_overall_m,omitempty" db:"length_overall_m"`
	BeamM          *float64 `json:"beam_m,omitempty" db:"beam_m"`
	DraftM         *float64 `json:"draft_m,omitempty" db:"draft_m"`
	DepthM         *float64 `json:"depth_m,omitempty" db:"depth_m"`

	GrossTonnage      *int `json:"gross_tonnage,omitempty" db:"gross_tonnage"`
	NetTonnage        *int `json:"net_tonnage,omitempty" db:"net_tonnage"`
	DeadweightTonnage *int `json:"deadweight_tonnage,omitempty" db:"deadweight_tonnage"`

	BuildYear    *int   `json:"build_year,omitempty" db:"build_year"`
	Builder      string `json:"builder,omitempty" db:"builder"`
	BuildCountry string `json:"build_country,omitempty" db:"build_country"`

	MainEngineType    string   `json:"main_engine_type,omitempty" db:"main_engine_type"`
	MainEnginePowerKW *int     `json:"main_engine_power_kw,omitempty" db:"main_engine_power_kw"`
	PropulsionType    string   `json:"propulsion_type,omitempty" db:"propulsion_type"`
	MaxSpeedKnots     *float64 `json:"max_speed_knots,omitempty" db:"max_speed_knots"`
	ServiceSpeedKnots *float64 `json:"service_speed_knots,omitempty" db:"service_speed_knots"`
	FuelCapacityM3    *float64 `json:"fuel_capacity_m3,omitempty" db:"fuel_capacity_m3"`

	DynamicPositioningClass string   `json:"dynamic_positioning_class,omitempty" db:"dynamic_positioning_class"`
	DeckAreaM2              *float64 `json:"deck_area_m2,omitempty" db:"deck_area_m2"`
	DeckLoadTonnes          *float64 `json:"deck_load_tonnes,omitempty" db:"deck_load_tonnes"`
	BollardPullTonnes       *float64 `json:"bollard_pull_tonnes,omitempty" db:"bollard_pull_tonnes"`
	CraneCapacityTonnes     *float64 `json:"crane_capacity_tonnes,omitempty" db:"crane_capacity_tonnes"`
	Helideck                bool     `json:"helideck" db:"helideck"`
	FireFightingClass       string   `json:"fire_fighting_class,omitempty" db:"fire_fighting_class"`
	AccommodationPersons    *int     `json:"accommodation_persons,omitempty" db:"accommodation_persons"`
	MoonPool                bool     `json:"moon_pool" db:"moon_pool"`
	ROVCapable              bool     `json:"rov_capable" db:"rov_capable"`

	CurrentStatus      string   `json:"current_status,omitempty" db:"current_status"`
	CurrentLocation    string   `json:"current_location,omitempty" db:"current_location"`
	AvailabilityStatus string   `json:"availability_status,omitempty" db:"availability_status"`
	CharterRateUSDDay  *float64 `json:"charter_rate_usd_day,omitempty" db:"charter_rate_usd_day"`
	HomePort           string   `json:"home_port,omitempty" db:"home_port"`

	CertificateExpiry *time.Time `json:"certificate_expiry,omitempty" db:"certificate_expiry"`
	LastDryDock       *time.Time `json:"last_dry_dock,omitempty" db:"last_dry_dock"`
	NextSurveyDue     *time.Time `json:"next_survey_due,omitempty" db:"next_survey_due"`

	OwnerCompanyID    *string `json:"owner_company_id,omitempty" db:"owner_company_id"`
	OperatorCompanyID *string `json:"operator_company_id,omitempty" db:"operator_company_id"`
	OwnerCompany      string  `json:"owner_company,omitempty" db:"owner_company"`
	OperatorCompany   string  `json:"operator_company,omitempty" db:"operator_company"`

	DataSources      []string   `json:"data_sources" db:"data_sources"`
	DataQualityScore float64    `json:"data_quality_score" db:"data_quality_score"`
	SourceURL        string     `json:"source_url,omitempty" db:"source_url"`
	LastVerifiedAt   *time.Time `json:"last_verified_at,omitempty" db:"last_verified_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`

	// PhotoURLs carries photo links found during enrichment until media
	// collection persists them.
	PhotoURLs []string `json:"-" db:"-"`
}

// Key returns the identity used to de-duplicate vessels: the IMO number when
// known, otherwise the upper-cased name plus owner.
func (v Vessel) Key() string {
	if v.IMONumber != "" {
		return "imo:" + v.IMONumber
	}
	return "name:" + strings.ToUpper(strings.TrimSpace(v.VesselName)) + "|" + strings.ToUpper(strings.TrimSpace(v.OwnerCompany))
}

// AddSource appends source to DataSources unless already present.
func (v *Vessel) AddSource(source string) {
	for _, s := range v.DataSources {
		if s == source {
			return
		}
	}
	v.DataSources = append(v.DataSources, source)
}

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to i.
func Int(i int) *int { return &i }
