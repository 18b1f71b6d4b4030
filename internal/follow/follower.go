// Follower setpoint computation from the leader state estimate.
package follow

import (
	"context"
	log "log/slog"
	"time"

	"swarmlink/internal/estimator"
	"swarmlink/internal/mission"
	"swarmlink/internal/nav"
	"swarmlink/internal/swarm"
)

// Follower recomputes the follow-mode setpoint at a fixed cadence. Each
// cycle it feeds the leader's newest telemetry into the Kalman filter and
// pushes desiredPosition = estimate + offset with the leader's velocity
// as feed-forward. It only acts while the agent is in an active
// smart-swarm mission with a follow slot configured.
type Follower struct {
	replica  *swarm.Replica
	est      *estimator.Filter
	fc       mission.FlightController
	origin   nav.OriginSource
	leaderHw uint16
	interval time.Duration
	log      *log.Logger
}

// New wires a follower. leaderHw is the hardware ID resolved from the
// agent's follow slot; it may be 0 for leaders, which disables the loop.
func New(replica *swarm.Replica, est *estimator.Filter, fc mission.FlightController, origin nav.OriginSource, leaderHw uint16, interval time.Duration, logger *log.Logger) *Follower {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Follower{
		replica:  replica,
		est:      est,
		fc:       fc,
		origin:   origin,
		leaderHw: leaderHw,
		interval: interval,
		log:      logger,
	}
}

// Run executes follow cycles until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) {
	if f.leaderHw == 0 {
		return
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.Step(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Step runs one follow cycle. It is a no-op unless the gating conditions
// hold and leader telemetry has been seen.
func (f *Follower) Step(ctx context.Context) {
	self := f.replica.Self()
	if self.Mission != swarm.MissionSmartSwarm || self.State == swarm.StateIdle || self.FollowSlot == 0 {
		return
	}
	leader, ok := f.replica.Peer(f.leaderHw)
	if !ok || leader.LastUpdate.IsZero() {
		return
	}

	origin, err := f.origin.Origin(ctx)
	if err != nil {
		f.log.Warn("skipping follow cycle, origin unavailable", "err", err)
		return
	}
	if !nav.ValidLatLon(origin.Lat, origin.Lon) || !nav.ValidLatLon(leader.Position.Lat, leader.Position.Lon) {
		f.log.Warn("skipping follow cycle, coordinates out of range")
		return
	}

	ned := nav.ToNED(nav.Geodetic{
		Lat: leader.Position.Lat,
		Lon: leader.Position.Lon,
		Alt: leader.Position.AltMSL,
	}, origin)

	// Duplicate and reordered datagrams are rejected inside Update by
	// the receipt-time monotonicity check.
	f.est.Update([6]float64{
		ned.N, ned.E, ned.D,
		leader.Velocity.N, leader.Velocity.E, leader.Velocity.D,
	}, leader.LastUpdate)
	if !f.est.Initialized() {
		return
	}

	state := f.est.State()
	sp := mission.Setpoint{
		Pos: nav.NED{
			N: state[0] + self.Offset.N,
			E: state[1] + self.Offset.E,
			D: state[2] - self.Offset.Alt,
		},
		Vel: swarm.VelocityNED{N: state[3], E: state[4], D: state[5]},
		Yaw: leader.Yaw,
	}
	if err := f.fc.SetSetpoint(ctx, sp); err != nil {
		f.log.Warn("setpoint push failed", "err", err)
	}
}
