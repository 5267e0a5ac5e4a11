package vessel

import "time"

// Membership is the association membership tier of a company.
type Membership string

// Membership tiers published in the member directory.
const (
	MembershipOrdinary  Membership = "ordinary"
	MembershipAssociate Membership = "associate"
)

// Company is a member company. Name is unique.
type Company struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	MembershipType Membership `json:"membership_type" db:"membership_type"`
	Address        string     `json:"address,omitempty" db:"address"`
	Phone          string     `json:"phone,omitempty" db:"phone"`
	Fax            string     `json:"fax,omitempty" db:"fax"`
	Email          string     `json:"email,omitempty" db:"email"`
	Website        string     `json:"website,omitempty" db:"website"`
	SourceURL      string     `json:"source_url,omitempty" db:"source_url"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
