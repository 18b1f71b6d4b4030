package nav

import (
	"math"
	"testing"
)

func TestValidLatLon(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.01, 0, false},
		{0, -180.5, false},
		{120, 400, false},
	}
	for _, tc := range cases {
		if got := ValidLatLon(tc.lat, tc.lon); got != tc.want {
			t.Errorf("ValidLatLon(%v, %v) = %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
}

func TestToNED_OriginIsZero(t *testing.T) {
	origin := Geodetic{Lat: 47.397742, Lon: 8.545594, Alt: 488}
	ned := ToNED(origin, origin)
	if math.Abs(ned.N) > 1e-6 || math.Abs(ned.E) > 1e-6 || math.Abs(ned.D) > 1e-6 {
		t.Errorf("origin did not map to zero offset: %+v", ned)
	}
}

func TestToNED_NorthDisplacement(t *testing.T) {
	origin := Geodetic{Lat: 47.0, Lon: 8.0, Alt: 0}
	// One arcsecond of latitude is roughly 30.9 m of northing.
	p := Geodetic{Lat: 47.0 + 1.0/3600.0, Lon: 8.0, Alt: 0}
	ned := ToNED(p, origin)
	if math.Abs(ned.N-30.9) > 0.2 {
		t.Errorf("N = %.3f, want about 30.9", ned.N)
	}
	if math.Abs(ned.E) > 0.01 {
		t.Errorf("E = %.4f, want about 0", ned.E)
	}
}

func TestToNED_AltitudeMapsToDown(t *testing.T) {
	origin := Geodetic{Lat: 35.0, Lon: 51.0, Alt: 1000}
	p := Geodetic{Lat: 35.0, Lon: 51.0, Alt: 1010}
	ned := ToNED(p, origin)
	// 10 m above origin is -10 on the D axis.
	if math.Abs(ned.D+10) > 0.01 {
		t.Errorf("D = %.4f, want about -10", ned.D)
	}
}
