// Formation-slot auto-detection from observed position.
package detector

import (
	"context"
	log "log/slog"
	"math"
	"sync"
	"time"

	"swarmlink/internal/config"
	"swarmlink/internal/nav"
	"swarmlink/internal/swarm"
)

// Detector periodically converts the agent's geodetic position into a
// local NED offset and matches it against the configured formation
// slots. It is a detection aid only: a mismatch against the assigned
// slot is warned about, never corrected.
type Detector struct {
	replica      *swarm.Replica
	origin       nav.OriginSource
	slots        []config.FormationSlot
	maxDeviation float64
	interval     time.Duration
	log          *log.Logger

	mu       sync.Mutex
	detected uint16
}

// New builds a detector over the configured slots. maxDeviation is the
// largest accepted distance to the nearest slot in the north-east plane.
func New(replica *swarm.Replica, origin nav.OriginSource, slots []config.FormationSlot, maxDeviation float64, interval time.Duration, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Detector{
		replica:      replica,
		origin:       origin,
		slots:        slots,
		maxDeviation: maxDeviation,
		interval:     interval,
		log:          logger,
	}
}

// Run executes detection cycles until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.DetectOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// DetectedPosID returns the most recent detection result; 0 means no
// slot matched (or no cycle has succeeded yet).
func (d *Detector) DetectedPosID() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detected
}

// DetectOnce runs a single detection cycle. Invalid origin or agent
// coordinates abort the cycle with a warning, keeping the previous
// result.
func (d *Detector) DetectOnce(ctx context.Context) {
	origin, err := d.origin.Origin(ctx)
	if err != nil {
		d.log.Warn("skipping slot detection, origin unavailable", "err", err)
		return
	}
	if !nav.ValidLatLon(origin.Lat, origin.Lon) {
		d.log.Warn("skipping slot detection, origin out of range",
			"lat", origin.Lat, "lon", origin.Lon)
		return
	}
	self := d.replica.Self()
	if !nav.ValidLatLon(self.Position.Lat, self.Position.Lon) {
		d.log.Warn("skipping slot detection, own position out of range",
			"lat", self.Position.Lat, "lon", self.Position.Lon)
		return
	}

	ned := nav.ToNED(nav.Geodetic{
		Lat: self.Position.Lat,
		Lon: self.Position.Lon,
		Alt: self.Position.AltMSL,
	}, origin)

	detected := NearestSlot(ned.N, ned.E, d.slots, d.maxDeviation)

	d.mu.Lock()
	d.detected = detected
	d.mu.Unlock()

	if detected == 0 {
		d.log.Warn("no formation slot within deviation limit",
			"north", ned.N, "east", ned.E, "max_deviation", d.maxDeviation)
		return
	}
	if detected != self.PosID {
		d.log.Warn("detected slot disagrees with assigned position",
			"detected", detected, "assigned", self.PosID)
	}
}

// NearestSlot returns the slot closest to (north, east) in the NE plane,
// or 0 when the closest candidate is farther than maxDeviation.
func NearestSlot(north, east float64, slots []config.FormationSlot, maxDeviation float64) uint16 {
	best := uint16(0)
	bestDist := math.Inf(1)
	for _, s := range slots {
		dist := math.Hypot(north-s.X, east-s.Y)
		if dist < bestDist {
			bestDist = dist
			best = s.PosID
		}
	}
	if bestDist > maxDeviation {
		return 0
	}
	return best
}
