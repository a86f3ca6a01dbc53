package geo

import (
	"math"

	"github.com/sells-group/buildpop/internal/model"
)

// EarthRadiusMiles is the IUGG mean Earth radius (6371.0088 km) in miles.
const EarthRadiusMiles = 3958.7613

// Haversine returns the great-circle distance between p and q on a sphere of
// the given radius. The result is in the radius' unit.
func Haversine(p, q model.Coord, radius float64) float64 {
	if p == q {
		return 0
	}
	lat1 := p.Lat * deg2rad
	lat2 := q.Lat * deg2rad
	dLat := (q.Lat - p.Lat) * deg2rad
	dLon := (q.Lon - p.Lon) * deg2rad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	if h > 1 {
		h = 1
	}
	return 2 * radius * math.Asin(math.Sqrt(h))
}

// DistanceMiles is Haversine on the mean Earth radius.
func DistanceMiles(p, q model.Coord) float64 {
	return Haversine(p, q, EarthRadiusMiles)
}

// DegreeWindow returns the half-width in degrees of longitude and latitude
// that is guaranteed to contain every point within miles of a point at lat.
func DegreeWindow(lat, miles, radius float64) (dLon, dLat float64) {
	perDegLat := radius * math.Pi / 180
	dLat = miles / perDegLat
	cosLat := math.Cos((math.Abs(lat) + dLat) * deg2rad)
	if cosLat <= 1e-9 {
		return 180, dLat
	}
	dLon = miles / (perDegLat * cosLat)
	if dLon > 180 {
		dLon = 180
	}
	return dLon, dLat
}
