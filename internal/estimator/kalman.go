// Constant-velocity Kalman filter for leader state estimation.
//
// The state vector is [pos_n, pos_e, pos_d, vel_n, vel_e, vel_d]. Both
// position and velocity are measured directly (H = I6), so with a
// block-diagonal process model the 6x6 filter decomposes into three
// independent 2x2 filters, one per axis. That removes the need for a
// general matrix inverse: the innovation covariance is a 2x2 block.
package estimator

import (
	"sync"
	"time"
)

// minDeterminant guards the 2x2 inversion against a singular innovation
// covariance.
const minDeterminant = 1e-12

// Filter fuses timestamped leader measurements into a smoothed state.
// Timestamp monotonicity is the only defense against duplicated or
// reordered UDP telemetry: updates at or before lastUpdate are discarded.
type Filter struct {
	mu sync.Mutex

	// Per axis: x[i] = [pos, vel], p[i] = row-major 2x2 covariance.
	x [3][2]float64
	p [3][4]float64

	processVar float64 // white-noise acceleration variance
	rPos       float64 // position measurement variance
	rVel       float64 // velocity measurement variance

	lastUpdate  time.Time
	initialized bool
}

// New returns a filter with the given process-noise variance and
// measurement-noise variances. Position measurements carry more noise
// than velocity in this protocol, so rPos is expected to exceed rVel.
func New(processVar, rPos, rVel float64) *Filter {
	return &Filter{processVar: processVar, rPos: rPos, rVel: rVel}
}

// Predict advances the state estimate to now without consuming a
// measurement. dt is clamped non-negative, so a caller with a skewed
// clock gets a pure carry-forward instead of backwards extrapolation.
func (f *Filter) Predict(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return
	}
	dt := now.Sub(f.lastUpdate).Seconds()
	if dt < 0 {
		dt = 0
	}
	f.predictLocked(dt)
}

// Update fuses a measurement z = [pos_n, pos_e, pos_d, vel_n, vel_e,
// vel_d] taken at measuredAt. Measurements at or before the previous
// update time are discarded.
func (f *Filter) Update(z [6]float64, measuredAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		for i := 0; i < 3; i++ {
			f.x[i] = [2]float64{z[i], z[i+3]}
			f.p[i] = [4]float64{f.rPos, 0, 0, f.rVel}
		}
		f.lastUpdate = measuredAt
		f.initialized = true
		return
	}
	if !measuredAt.After(f.lastUpdate) {
		return
	}

	dt := measuredAt.Sub(f.lastUpdate).Seconds()
	f.predictLocked(dt)

	for i := 0; i < 3; i++ {
		p := &f.p[i]
		x := &f.x[i]

		// Innovation covariance S = P + R; 2x2 inverse in closed form.
		s00 := p[0] + f.rPos
		s01 := p[1]
		s10 := p[2]
		s11 := p[3] + f.rVel
		det := s00*s11 - s01*s10
		if det < minDeterminant && det > -minDeterminant {
			continue
		}
		i00, i01 := s11/det, -s01/det
		i10, i11 := -s10/det, s00/det

		// Gain K = P * S^-1.
		k00 := p[0]*i00 + p[1]*i10
		k01 := p[0]*i01 + p[1]*i11
		k10 := p[2]*i00 + p[3]*i10
		k11 := p[2]*i01 + p[3]*i11

		// State correction x += K * (z - x).
		rp := z[i] - x[0]
		rv := z[i+3] - x[1]
		x[0] += k00*rp + k01*rv
		x[1] += k10*rp + k11*rv

		// Covariance update P = (I - K) * P.
		n00 := (1-k00)*p[0] - k01*p[2]
		n01 := (1-k00)*p[1] - k01*p[3]
		n10 := -k10*p[0] + (1-k11)*p[2]
		n11 := -k10*p[1] + (1-k11)*p[3]
		*p = [4]float64{n00, n01, n10, n11}
	}
	f.lastUpdate = measuredAt
}

// predictLocked applies x' = Fx, P' = FPF' + Q per axis for the given dt.
// F = [[1, dt], [0, 1]]; Q is the white-noise acceleration model.
func (f *Filter) predictLocked(dt float64) {
	if dt == 0 {
		return
	}
	dt2 := dt * dt
	q00 := f.processVar * dt2 * dt2 / 4
	q01 := f.processVar * dt2 * dt / 2
	q11 := f.processVar * dt2

	for i := 0; i < 3; i++ {
		x := &f.x[i]
		x[0] += dt * x[1]

		p := &f.p[i]
		// FP rows: [p0 + dt*p2, p1 + dt*p3], [p2, p3]
		fp0 := p[0] + dt*p[2]
		fp1 := p[1] + dt*p[3]
		// (FP)F' columns, then add Q.
		*p = [4]float64{
			fp0 + dt*fp1 + q00, fp1 + q01,
			p[2] + dt*p[3] + q01, p[3] + q11,
		}
	}
}

// State returns the current smoothed [pos_n, pos_e, pos_d, vel_n, vel_e,
// vel_d] vector.
func (f *Filter) State() [6]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return [6]float64{
		f.x[0][0], f.x[1][0], f.x[2][0],
		f.x[0][1], f.x[1][1], f.x[2][1],
	}
}

// LastUpdate returns the time of the newest accepted measurement.
func (f *Filter) LastUpdate() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUpdate
}

// Initialized reports whether at least one measurement was accepted.
func (f *Filter) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}
