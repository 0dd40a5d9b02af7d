package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number, a numeric string, an empty string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	clean := strings.NewReplacer(",", "", "$", "").Replace(string(s))
	if clean == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return fmt.Errorf("expected number, got %q", string(s))
	}
	*f = flexFloat(v)
	return nil
}

// flexBool accepts a JSON bool, "true"/"false"/"yes"/"no"/"1"/"0" or null.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		var v bool
		if err2 := json.Unmarshal(b, &v); err2 != nil {
			return err
		}
		*f = flexBool(v)
		return nil
	}
	switch strings.ToLower(string(s)) {
	case "true", "yes", "y", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

var saleDateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05", "01/02/2006"}

// wireProperty is the search payload as the backend sends it.
// Attribute fields may appear at the top level or nested under "attributes".
type wireProperty struct {
	ID           flexString      `json:"id"`
	ParcelID     flexString      `json:"parcel_id"`
	Address      flexString      `json:"address"`
	Municipality flexString      `json:"municipality"`
	Geometry     json.RawMessage `json:"geometry"`
	Latitude     flexFloat       `json:"latitude"`
	Longitude    flexFloat       `json:"longitude"`
	wireAttributes
	Attributes *wireAttributes `json:"attributes"`
}

type wireAttributes struct {
	OwnerName      flexString `json:"owner_name"`
	MailingAddress flexString `json:"mailing_address"`
	OwnerCity      flexString `json:"owner_city"`
	OwnerState     flexString `json:"owner_state"`
	UnitType       flexString `json:"unit_type"`
	Zoning         flexString `json:"zoning"`
	YearBuilt      flexFloat  `json:"year_built"`
	LastSaleDate   flexString `json:"last_sale_date"`
	LastSalePrice  flexFloat  `json:"last_sale_price"`
	AssessedValue  flexFloat  `json:"assessed_value"`
	LotAcres       flexFloat  `json:"lot_acres"`
	LivingArea     flexFloat  `json:"living_area"`
	Vacant         flexBool   `json:"vacant"`
	AbsenteeOwner  flexBool   `json:"absentee_owner"`
}

func (w wireAttributes) toAttributes() types.Attributes {
	a := types.Attributes{
		OwnerName:      string(w.OwnerName),
		MailingAddress: string(w.MailingAddress),
		OwnerCity:      string(w.OwnerCity),
		OwnerState:     strings.ToUpper(string(w.OwnerState)),
		UnitType:       string(w.UnitType),
		Zoning:         string(w.Zoning),
		YearBuilt:      int(w.YearBuilt),
		LastSalePrice:  float64(w.LastSalePrice),
		AssessedValue:  float64(w.AssessedValue),
		LotAcres:       float64(w.LotAcres),
		LivingAreaSqFt: float64(w.LivingArea),
		Vacant:         bool(w.Vacant),
		AbsenteeOwner:  bool(w.AbsenteeOwner),
	}
	for _, layout := range saleDateLayouts {
		if ts, err := time.Parse(layout, string(w.LastSaleDate)); err == nil {
			a.LastSaleDate = ts
			break
		}
	}
	return a
}

// DecodeProperty turns one wire record into a Property.
// Records without an id or with an unsupported geometry are rejected whole.
func DecodeProperty(raw json.RawMessage) (types.Property, error) {
	var w wireProperty
	if err := json.Unmarshal(raw, &w); err != nil {
		return types.Property{}, fmt.Errorf("decode property: %w", err)
	}
	if w.ID == "" {
		return types.Property{}, fmt.Errorf("decode property: missing id")
	}

	geom, err := decodeGeometry(w.Geometry)
	if err != nil {
		return types.Property{}, fmt.Errorf("decode property %s: %w", w.ID, err)
	}
	if geom == nil && (w.Latitude != 0 || w.Longitude != 0) {
		geom = orb.Point{float64(w.Longitude), float64(w.Latitude)}
	}
	if geom == nil {
		return types.Property{}, fmt.Errorf("decode property %s: missing geometry", w.ID)
	}

	attrs := w.wireAttributes
	if w.Attributes != nil {
		attrs = *w.Attributes
	}

	return types.Property{
		ID:           string(w.ID),
		ParcelID:     string(w.ParcelID),
		Address:      string(w.Address),
		Municipality: string(w.Municipality),
		Geometry:     geom,
		Attributes:   attrs.toAttributes(),
	}, nil
}

// decodeGeometry accepts GeoJSON Point, Polygon and MultiPolygon in WGS84.
func decodeGeometry(raw json.RawMessage) (orb.Geometry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	// some backends send the geometry as an encoded string
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("geometry: %w", err)
		}
		raw = json.RawMessage(s)
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}

	geom := g.Geometry()
	if geom == nil {
		return nil, fmt.Errorf("geometry: empty")
	}
	switch geom.(type) {
	case orb.Point, orb.Polygon, orb.MultiPolygon:
	default:
		return nil, fmt.Errorf("geometry: unsupported type %s", geom.GeoJSONType())
	}
	if !validLonLat(geom.Bound()) {
		return nil, fmt.Errorf("geometry: coordinates outside WGS84 range")
	}
	return geom, nil
}

func validLonLat(b orb.Bound) bool {
	return b.Min.Lon() >= -180 && b.Max.Lon() <= 180 && b.Min.Lat() >= -90 && b.Max.Lat() <= 90
}

// DecodeProperties decodes a list of wire records, dropping invalid ones.
// It returns the number of dropped records.
func DecodeProperties(raws []json.RawMessage) ([]types.Property, int, []error) {
	props := make([]types.Property, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		p, err := DecodeProperty(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		props = append(props, p)
	}
	return props, len(errs), errs
}
