package geo

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"

	"github.com/sells-group/buildpop/internal/model"
)

// Projection converts between geographic degrees and a planar CRS.
type Projection interface {
	EPSG() int
	Forward(lon, lat float64) (x, y float64)
	Inverse(x, y float64) (lon, lat float64)
}

// Geographic reports whether the EPSG code is a supported geographic CRS.
// WGS84 and NAD83 differ by about a metre in CONUS and are treated as the same.
func Geographic(epsg int) bool {
	return epsg == model.EPSGWGS84 || epsg == model.EPSGNAD83
}

// ProjectionFor returns the planar projection for an EPSG code.
func ProjectionFor(epsg int) (Projection, error) {
	switch epsg {
	case model.EPSGLAEAEurope:
		return &planar{
			epsg: epsg,
			crs:  wgs84.ETRS89LambertAzimuthalEqualArea(),
			lon0: 10, lat0: 52,
			x0: 4321000, y0: 3210000,
		}, nil
	case model.EPSGAlbersUSA:
		return &planar{
			epsg: epsg,
			crs:  wgs84.NAD83().AlbersEqualAreaConic(-96, 23, 29.5, 45.5, 0, 0),
		}, nil
	}
	return nil, &model.ConfigurationError{
		Setting: "projection",
		Reason:  fmt.Sprintf("unsupported equal-area EPSG:%d (supported: 3035, 5070)", epsg),
	}
}

// planar applies a wgs84 projection on its own datum. Both supported CRSs sit
// on GRS80, so the geocentric datum shift is skipped and coordinates keep
// full precision.
type planar struct {
	epsg       int
	crs        wgs84.ProjectedReferenceSystem
	lon0, lat0 float64
	x0, y0     float64
}

// EPSG implements Projection.
func (p *planar) EPSG() int { return p.epsg }

// Forward implements Projection.
func (p *planar) Forward(lon, lat float64) (float64, float64) {
	return p.crs.Projection.FromLonLat(lon, lat, p.crs.Datum)
}

// Inverse implements Projection.
func (p *planar) Inverse(x, y float64) (float64, float64) {
	// The azimuthal inverse divides by the distance from the false origin.
	if p.lat0 != 0 && math.Hypot(x-p.x0, y-p.y0) < 1e-6 {
		return p.lon0, p.lat0
	}
	return p.crs.Projection.ToLonLat(x, y, p.crs.Datum)
}
