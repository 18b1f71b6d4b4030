// Geodetic helpers: WGS84 tangent-plane conversion and coordinate checks.
package nav

import (
	"context"
	"math"
)

// WGS84 ellipsoid constants.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257223563
)

var eccSquared = flattening * (2 - flattening)

// Geodetic is a latitude/longitude pair with altitude in meters.
type Geodetic struct {
	Lat float64
	Lon float64
	Alt float64
}

// NED is a position in the local North-East-Down frame, meters.
type NED struct {
	N float64
	E float64
	D float64
}

// OriginSource supplies the reference datum used to convert absolute
// positions into local NED offsets. Typically backed by a ground-station
// service; StaticOrigin serves fixed deployments.
type OriginSource interface {
	Origin(ctx context.Context) (Geodetic, error)
}

// StaticOrigin is an OriginSource returning a fixed datum.
type StaticOrigin Geodetic

func (o StaticOrigin) Origin(context.Context) (Geodetic, error) {
	return Geodetic(o), nil
}

// ValidLatLon reports whether lat/lon are inside geodetic range.
func ValidLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ToECEF converts a geodetic point to Earth-centered Earth-fixed
// coordinates on the WGS84 ellipsoid.
func ToECEF(g Geodetic) (x, y, z float64) {
	latRad := g.Lat * math.Pi / 180
	lonRad := g.Lon * math.Pi / 180
	sinLat := math.Sin(latRad)
	cosLat := math.Cos(latRad)

	// Prime vertical radius of curvature.
	n := semiMajorAxis / math.Sqrt(1-eccSquared*sinLat*sinLat)

	x = (n + g.Alt) * cosLat * math.Cos(lonRad)
	y = (n + g.Alt) * cosLat * math.Sin(lonRad)
	z = (n*(1-eccSquared) + g.Alt) * sinLat
	return x, y, z
}

// ToNED converts a geodetic point into NED offsets relative to origin.
func ToNED(p, origin Geodetic) NED {
	px, py, pz := ToECEF(p)
	ox, oy, oz := ToECEF(origin)
	dx, dy, dz := px-ox, py-oy, pz-oz

	latRad := origin.Lat * math.Pi / 180
	lonRad := origin.Lon * math.Pi / 180
	sinLat, cosLat := math.Sin(latRad), math.Cos(latRad)
	sinLon, cosLon := math.Sin(lonRad), math.Cos(lonRad)

	return NED{
		N: -sinLat*cosLon*dx - sinLat*sinLon*dy + cosLat*dz,
		E: -sinLon*dx + cosLon*dy,
		D: -cosLat*cosLon*dx - cosLat*sinLon*dy - sinLat*dz,
	}
}
