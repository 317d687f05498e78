// Package proj implements the map projections used by the render pipeline:
// spherical Web Mercator (EPSG:3857) forward and inverse, and the forward
// NSIDC polar stereographic north transform (EPSG:3413) used by the sea ice
// grids.
package proj

import "math"

const (
	// OriginShift is half the extent of the Web Mercator plane in meters.
	OriginShift = 20037508.34

	// MaxLat is the latitude limit of Web Mercator. Latitudes beyond it are
	// clamped before projecting.
	MaxLat = 85.051
)

func clampLat(lat float64) float64 {
	if lat > MaxLat {
		return MaxLat
	}
	if lat < -MaxLat {
		return -MaxLat
	}
	return lat
}

// LonLatToWebMercator converts geographic degrees to Web Mercator meters.
func LonLatToWebMercator(lon, lat float64) (x, y float64) {
	lat = clampLat(lat)
	x = lon * OriginShift / 180.0
	y = math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	y = y * OriginShift / 180.0
	return x, y
}

// WebMercatorToLonLat is the inverse of LonLatToWebMercator on the clamped
// domain.
func WebMercatorToLonLat(x, y float64) (lon, lat float64) {
	lon = x / OriginShift * 180.0
	lat = y / OriginShift * 180.0
	lat = 180.0 / math.Pi * (2.0*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return lon, lat
}

var maxMerc = math.Log(math.Tan(math.Pi/4 + (MaxLat*math.Pi/180)/2))

// LatToMercatorY converts a latitude to a normalized Mercator Y in [0,1],
// 0 at the north clamp and 1 at the south clamp.
func LatToMercatorY(lat float64) float64 {
	lat = clampLat(lat)
	m := math.Log(math.Tan(math.Pi/4 + (lat*math.Pi/180)/2))
	return (maxMerc - m) / (2 * maxMerc)
}

// MercatorYToLat converts a normalized Mercator Y (0=north, 1=south) back to
// a latitude in degrees.
func MercatorYToLat(y float64) float64 {
	m := maxMerc - y*2*maxMerc
	return (2*math.Atan(math.Exp(m)) - math.Pi/2) * 180 / math.Pi
}

// Polar stereographic north (EPSG:3413) parameters: WGS84 ellipsoid,
// standard latitude 70N, central meridian 45W.
const (
	psA     = 6378137.0
	psE     = 0.0818191908426
	psLatTS = 70.0
	psLon0  = -45.0
)

func psT(latRad float64) float64 {
	s := math.Sin(latRad)
	return math.Tan(math.Pi/4-latRad/2) / math.Pow((1-psE*s)/(1+psE*s), psE/2)
}

// LonLatToPolarStereographicNorth converts geographic degrees to EPSG:3413
// meters. Forward only; the polar grids are never inverse-projected.
func LonLatToPolarStereographicNorth(lon, lat float64) (x, y float64) {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	lon0Rad := psLon0 * math.Pi / 180
	latTSRad := psLatTS * math.Pi / 180

	t := psT(latRad)
	tc := psT(latTSRad)
	sTS := math.Sin(latTSRad)
	mc := math.Cos(latTSRad) / math.Sqrt(1-psE*psE*sTS*sTS)

	rho := psA * mc * t / tc

	x = rho * math.Sin(lonRad-lon0Rad)
	y = -rho * math.Cos(lonRad-lon0Rad)
	return x, y
}

// TileBounds returns the geographic bounding box of a slippy map tile.
func TileBounds(z, x, y int) (west, south, east, north float64) {
	n := math.Pow(2, float64(z))
	west = float64(x)/n*360.0 - 180.0
	east = float64(x+1)/n*360.0 - 180.0
	north = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
	south = math.Atan(math.Sinh(math.Pi*(1-2*float64(y+1)/n))) * 180 / math.Pi
	return west, south, east, north
}
