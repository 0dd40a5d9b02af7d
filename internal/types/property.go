package types

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Attributes holds the parcel fields the client displays and filters on.
// Optional numeric fields are zero when the backend did not send them.
type Attributes struct {
	OwnerName      string    `json:"owner_name,omitempty"`
	MailingAddress string    `json:"mailing_address,omitempty"`
	OwnerCity      string    `json:"owner_city,omitempty"`
	OwnerState     string    `json:"owner_state,omitempty"`
	UnitType       string    `json:"unit_type,omitempty"`
	Zoning         string    `json:"zoning,omitempty"`
	YearBuilt      int       `json:"year_built,omitempty"`
	LastSaleDate   time.Time `json:"last_sale_date,omitempty"`
	LastSalePrice  float64   `json:"last_sale_price,omitempty"`
	AssessedValue  float64   `json:"assessed_value,omitempty"`
	LotAcres       float64   `json:"lot_acres,omitempty"`
	LivingAreaSqFt float64   `json:"living_area_sqft,omitempty"`
	Vacant         bool      `json:"vacant,omitempty"`
	AbsenteeOwner  bool      `json:"absentee_owner,omitempty"`
}

// Property is a parcel as returned by the search endpoint.
// Values are immutable once fetched; ID identifies a property across result sets.
type Property struct {
	ID           string       `json:"id"`
	ParcelID     string       `json:"parcel_id"`
	Address      string       `json:"address"`
	Municipality string       `json:"municipality"`
	Geometry     orb.Geometry `json:"-"`
	Attributes   Attributes   `json:"attributes"`
}

// Centroid returns the geometry centroid. Points return themselves.
func (p Property) Centroid() (LatLng, bool) {
	if p.Geometry == nil {
		return LatLng{}, false
	}
	if pt, ok := p.Geometry.(orb.Point); ok {
		return FromPoint(pt), true
	}
	c, area := planar.CentroidArea(p.Geometry)
	if area == 0 {
		// degenerate polygon, use the bound center
		c = p.Geometry.Bound().Center()
	}
	return FromPoint(c), true
}

// FindProperty returns the property with the given id, if present.
func FindProperty(props []Property, id string) (Property, bool) {
	for _, p := range props {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}
