package model

import (
	"github.com/twpayne/go-geom"
)

// Census variable codes used by the pipeline.
const (
	VarTotalPopulation = "B01003_001E"
	VarHouseholdSize   = "B25010_001E"
)

// annotations are the values the Census API publishes in place of an
// estimate that is suppressed, not computed, or not applicable.
var annotations = map[float64]bool{
	-999999999: true,
	-888888888: true,
	-666666666: true,
	-555555555: true,
	-333333333: true,
	-222222222: true,
}

// IsAnnotation reports whether v is a Census annotation code rather than an
// estimate.
func IsAnnotation(v float64) bool {
	return annotations[v]
}

// Tract is one ACS census tract with its boundary and demographic measures.
type Tract struct {
	GEOID           string
	Name            string
	Boundary        geom.T
	CRS             int
	HouseholdSize   *float64 // nil when the estimate is missing
	TotalPopulation *float64
	Measures        map[string]float64
}

// Float returns a pointer to v. Handy for populating optional measures.
func Float(v float64) *float64 {
	return &v
}

// AccessPair is one row of the access table: a building from set A, a
// building from set B, and the great-circle distance between their centroids.
type AccessPair struct {
	AID           string  `json:"a_id"`
	BID           string  `json:"b_id"`
	ATract        string  `json:"a_tract"`
	BTract        string  `json:"b_tract"`
	A             Coord   `json:"a"`
	B             Coord   `json:"b"`
	DistanceMiles float64 `json:"distance"`
	Access        int     `json:"access"`
}
