package geo

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/buildpop/internal/model"
)

// prjSignatures maps fragments of ESRI .prj WKT to EPSG codes. Projected
// signatures are checked before geographic ones since PROJCS strings embed a
// GEOGCS.
var prjSignatures = []struct {
	fragments []string
	epsg      int
}{
	{[]string{"LAMBERT_AZIMUTHAL_EQUAL_AREA", "ETRS"}, model.EPSGLAEAEurope},
	{[]string{"ALBERS", "NAD_1983", "CONTIGUOUS_USA"}, model.EPSGAlbersUSA},
	{[]string{"ALBERS", "NAD83", "CONUS"}, model.EPSGAlbersUSA},
	{[]string{"GEOGCS", "WGS_1984"}, model.EPSGWGS84},
	{[]string{"GEOGCS", "WGS 84"}, model.EPSGWGS84},
	{[]string{"GEOGCS", "NORTH_AMERICAN_1983"}, model.EPSGNAD83},
	{[]string{"GEOGCS", "NAD83"}, model.EPSGNAD83},
}

// DetectEPSG identifies the CRS described by .prj WKT text. Unknown text
// yields 0. Any PROJCS that is not one of the supported equal-area
// projections also yields 0 so callers can reject it.
func DetectEPSG(wkt string) int {
	upper := strings.ToUpper(wkt)
	projected := strings.HasPrefix(strings.TrimSpace(upper), "PROJCS")
	for _, sig := range prjSignatures {
		if matchesAll(upper, sig.fragments) {
			if projected && Geographic(sig.epsg) {
				return 0
			}
			return sig.epsg
		}
	}
	return 0
}

func matchesAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, strings.ToUpper(f)) {
			return false
		}
	}
	return true
}

// prjWKT holds the ESRI WKT written for each supported CRS.
var prjWKT = map[int]string{
	model.EPSGWGS84: `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
	model.EPSGNAD83: `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
	model.EPSGLAEAEurope: `PROJCS["ETRS_1989_LAEA",GEOGCS["GCS_ETRS_1989",DATUM["D_ETRS_1989",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],` +
		`PROJECTION["Lambert_Azimuthal_Equal_Area"],PARAMETER["False_Easting",4321000.0],PARAMETER["False_Northing",3210000.0],PARAMETER["Central_Meridian",10.0],PARAMETER["Latitude_Of_Origin",52.0],UNIT["Meter",1.0]]`,
	model.EPSGAlbersUSA: `PROJCS["NAD_1983_Contiguous_USA_Albers",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],` +
		`PROJECTION["Albers"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-96.0],PARAMETER["Standard_Parallel_1",29.5],PARAMETER["Standard_Parallel_2",45.5],PARAMETER["Latitude_Of_Origin",23.0],UNIT["Meter",1.0]]`,
}

// WritePRJ writes the sidecar .prj for a shapefile path.
func WritePRJ(shpPath string, epsg int) error {
	wkt, ok := prjWKT[epsg]
	if !ok {
		return &model.ConfigurationError{
			Setting: "crs",
			Reason:  fmt.Sprintf("no .prj definition for EPSG:%d", epsg),
		}
	}
	prjPath := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	if err := os.WriteFile(prjPath, []byte(wkt), 0o644); err != nil {
		return eris.Wrapf(err, "geo: write %s", prjPath)
	}
	return nil
}

// ReadPRJ reads the sidecar .prj for a shapefile path. A missing file returns
// fallback. A present but unrecognized .prj is a ConfigurationError so the
// join never runs on coordinates it cannot interpret.
func ReadPRJ(shpPath string, fallback int) (int, error) {
	prjPath := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	data, err := os.ReadFile(prjPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, nil
		}
		return 0, eris.Wrapf(err, "geo: read %s", prjPath)
	}
	epsg := DetectEPSG(string(data))
	if epsg == 0 {
		return 0, &model.ConfigurationError{
			Setting: prjPath,
			Reason:  "unrecognized coordinate reference system",
		}
	}
	return epsg, nil
}
