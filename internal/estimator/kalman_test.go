package estimator

import (
	"math"
	"testing"
	"time"
)

func newTestFilter() *Filter {
	// Position noisier than velocity, matching the telemetry layout.
	return New(1.0, 4.0, 0.25)
}

func TestUpdate_FirstMeasurementSeedsState(t *testing.T) {
	f := newTestFilter()
	t0 := time.Unix(1687840000, 0)
	f.Update([6]float64{10, 20, -5, 1, 2, 0}, t0)

	got := f.State()
	want := [6]float64{10, 20, -5, 1, 2, 0}
	if got != want {
		t.Errorf("State() = %v, want %v", got, want)
	}
	if !f.LastUpdate().Equal(t0) {
		t.Errorf("LastUpdate = %v, want %v", f.LastUpdate(), t0)
	}
}

func TestUpdate_DuplicateTimestampRejected(t *testing.T) {
	f := newTestFilter()
	t0 := time.Unix(1687840000, 0)
	f.Update([6]float64{10, 0, 0, 0, 0, 0}, t0)
	before := f.State()

	// Same timestamp, wildly different measurement: must be a no-op.
	f.Update([6]float64{999, 999, 999, 9, 9, 9}, t0)
	if f.State() != before {
		t.Errorf("duplicate measurement changed state: %v -> %v", before, f.State())
	}

	// Older timestamp likewise.
	f.Update([6]float64{-999, 0, 0, 0, 0, 0}, t0.Add(-time.Second))
	if f.State() != before {
		t.Errorf("reordered measurement changed state: %v", f.State())
	}
}

func TestPredict_NegativeDtIsCarryForward(t *testing.T) {
	f := newTestFilter()
	t0 := time.Unix(1687840000, 0)
	f.Update([6]float64{10, 0, 0, 3, 0, 0}, t0)
	before := f.State()

	f.Predict(t0.Add(-5 * time.Second))
	if f.State() != before {
		t.Errorf("Predict with past time extrapolated: %v -> %v", before, f.State())
	}
}

func TestPredict_AdvancesPosition(t *testing.T) {
	f := newTestFilter()
	t0 := time.Unix(1687840000, 0)
	f.Update([6]float64{10, 0, 0, 3, 0, 0}, t0)

	f.Predict(t0.Add(2 * time.Second))
	got := f.State()
	if math.Abs(got[0]-16) > 1e-9 {
		t.Errorf("pos_n = %v, want 16", got[0])
	}
	if math.Abs(got[3]-3) > 1e-9 {
		t.Errorf("vel_n = %v, want 3", got[3])
	}
}

func TestUpdate_TracksLeaderVelocity(t *testing.T) {
	f := newTestFilter()
	t0 := time.Unix(1687840000, 0)

	// Two measurements one second apart, pos_n advancing by 2.0 m with a
	// consistent velocity reading.
	f.Update([6]float64{0, 0, 0, 2, 0, 0}, t0)
	f.Update([6]float64{2, 0, 0, 2, 0, 0}, t0.Add(time.Second))

	got := f.State()
	if math.Abs(got[3]-2.0) > 0.1 {
		t.Errorf("vel_n = %v, want about 2.0", got[3])
	}
	if math.Abs(got[0]-2.0) > 0.5 {
		t.Errorf("pos_n = %v, want near 2.0", got[0])
	}
}

func TestUpdate_SmoothsNoisyPosition(t *testing.T) {
	f := newTestFilter()
	t0 := time.Unix(1687840000, 0)
	f.Update([6]float64{0, 0, 0, 1, 0, 0}, t0)
	f.Update([6]float64{1, 0, 0, 1, 0, 0}, t0.Add(time.Second))

	// An outlier position with the same steady velocity should be pulled
	// back toward the constant-velocity prediction, not swallowed whole.
	f.Update([6]float64{10, 0, 0, 1, 0, 0}, t0.Add(2*time.Second))
	got := f.State()
	if got[0] >= 10 {
		t.Errorf("pos_n = %v, outlier not smoothed", got[0])
	}
	if got[0] <= 2 {
		t.Errorf("pos_n = %v, measurement ignored entirely", got[0])
	}
}

func TestPredict_BeforeFirstMeasurementIsNoop(t *testing.T) {
	f := newTestFilter()
	f.Predict(time.Unix(1687840000, 0))
	if f.Initialized() {
		t.Error("Predict initialized the filter without a measurement")
	}
	if f.State() != ([6]float64{}) {
		t.Errorf("State() = %v, want zeros", f.State())
	}
}
