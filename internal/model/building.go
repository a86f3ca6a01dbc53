// Package model holds the records that flow through the allocation and access
// pipelines, along with the error taxonomy shared by every stage.
package model

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Well-known EPSG codes.
const (
	EPSGWGS84      = 4326
	EPSGNAD83      = 4269
	EPSGLAEAEurope = 3035
	EPSGAlbersUSA  = 5070
)

// Coord is a geographic coordinate. X is longitude, Y is latitude.
type Coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the coordinate is finite and within geographic range.
func (c Coord) Valid() bool {
	if math.IsNaN(c.Lon) || math.IsNaN(c.Lat) || math.IsInf(c.Lon, 0) || math.IsInf(c.Lat, 0) {
		return false
	}
	return c.Lon >= -180 && c.Lon <= 180 && c.Lat >= -90 && c.Lat <= 90
}

// Building is one footprint from the building layer.
type Building struct {
	ID         string
	Label      string
	Class      OccupancyClass
	Footprint  geom.T
	CRS        int
	Centroid   *Coord
	TractGEOID string
	Attributes map[string]string
}

// Field returns a named field. "id", "class" and "tract" resolve to the
// typed fields; anything else is looked up in Attributes.
func (b Building) Field(name string) (string, bool) {
	switch name {
	case "id":
		return b.ID, true
	case "class", "":
		return b.Label, true
	case "tract":
		return b.TractGEOID, b.TractGEOID != ""
	}
	v, ok := b.Attributes[name]
	return v, ok
}

// Clone returns a shallow copy with its own attribute map and centroid.
func (b Building) Clone() Building {
	out := b
	if b.Attributes != nil {
		out.Attributes = make(map[string]string, len(b.Attributes))
		for k, v := range b.Attributes {
			out.Attributes[k] = v
		}
	}
	if b.Centroid != nil {
		c := *b.Centroid
		out.Centroid = &c
	}
	return out
}
