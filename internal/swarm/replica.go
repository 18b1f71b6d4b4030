package swarm

import (
	log "log/slog"
	"sort"
	"sync"
	"time"

	"swarmlink/internal/packet"
)

// Replica is the single source of truth for agent state. It holds the own
// record plus the last-known record of every peer heard on the wire.
// Transport mutates it on packet receipt, the scheduler on mission-state
// resets; the estimator, detector and send loop read it. One mutex covers
// all records so readers always see a consistent snapshot.
type Replica struct {
	mu    sync.Mutex
	self  AgentRecord
	peers map[uint16]AgentRecord
	now   func() time.Time
	log   *log.Logger
}

// NewReplica builds a replica seeded with the agent's configured identity:
// hardware ID, formation slot, follow slot and leader offset.
func NewReplica(hwID, posID uint16, followSlot uint8, offset OffsetNED, logger *log.Logger) *Replica {
	if logger == nil {
		logger = log.Default()
	}
	return &Replica{
		self: AgentRecord{
			HwID:       hwID,
			PosID:      posID,
			FollowSlot: followSlot,
			Offset:     offset,
		},
		peers: make(map[uint16]AgentRecord),
		now:   time.Now,
		log:   logger,
	}
}

// SetClock overrides the receipt-time source. Tests only.
func (r *Replica) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Apply folds a decoded packet into the replica. Command packets are
// ground-station instructions to self and overwrite the own record's
// mission fields; telemetry packets update (or create) the sender's peer
// record. Last writer wins per field group.
func (r *Replica) Apply(p packet.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch p.Kind {
	case packet.KindCommand:
		if p.HwID != r.self.HwID {
			r.log.Debug("dropping command addressed to another agent",
				"target", p.HwID, "self", r.self.HwID)
			return
		}
		r.self.Mission = MissionCode(p.Mission)
		r.self.State = AgentState(p.State)
		r.self.TriggerTime = p.TriggerTime
		r.self.PosID = p.PosID
		r.self.LastUpdate = r.now()
	case packet.KindTelemetry:
		if p.HwID == r.self.HwID {
			// The own record's pose is fed by the flight stack, never by
			// a looped-back datagram.
			return
		}
		rec := r.peers[p.HwID]
		rec.HwID = p.HwID
		rec.PosID = p.PosID
		rec.Mission = MissionCode(p.Mission)
		rec.State = AgentState(p.State)
		rec.TriggerTime = p.TriggerTime
		rec.Position = Position{Lat: p.Lat, Lon: p.Lon, AltMSL: p.AltMSL}
		rec.Velocity = VelocityNED{N: p.VelN, E: p.VelE, D: p.VelD}
		rec.Yaw = p.Yaw
		rec.Battery = p.Battery
		rec.FollowSlot = p.Follow
		rec.LastUpdate = r.now()
		r.peers[p.HwID] = rec
	}
}

// SetOwnPose updates the flight-stack-owned fields of the own record.
func (r *Replica) SetOwnPose(pos Position, vel VelocityNED, yaw, battery float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self.Position = pos
	r.self.Velocity = vel
	r.self.Yaw = yaw
	r.self.Battery = battery
}

// Self returns a copy of the own record, sufficient to build an outgoing
// telemetry packet.
func (r *Replica) Self() AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// Peer returns a copy of the last-known record for hwID.
func (r *Replica) Peer(hwID uint16) (AgentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[hwID]
	return rec, ok
}

// Snapshot returns the own record followed by all peer records, ordered
// by hardware ID.
func (r *Replica) Snapshot() []AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentRecord, 0, len(r.peers)+1)
	out = append(out, r.self)
	for _, rec := range r.peers {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HwID < out[j].HwID })
	return out
}

// Trigger flips the own record from armed to triggered, provided it is
// still armed for the same trigger time the caller observed. The returned
// record is the state at the moment of the transition.
func (r *Replica) Trigger(triggerTime uint32) (AgentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.self.State != StateArmed || r.self.TriggerTime != triggerTime {
		return AgentRecord{}, false
	}
	r.self.State = StateTriggered
	return r.self, true
}

// ResetMission returns the own record to idle after a mission completes so
// the same trigger cannot re-fire.
func (r *Replica) ResetMission() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self.State = StateIdle
	r.self.Mission = MissionNone
	r.self.TriggerTime = 0
}

// TelemetryPacket builds the outgoing telemetry packet for the own record.
func (r *Replica) TelemetryPacket() packet.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return packet.Packet{
		Kind:        packet.KindTelemetry,
		HwID:        r.self.HwID,
		PosID:       r.self.PosID,
		Mission:     uint8(r.self.Mission),
		State:       uint8(r.self.State),
		TriggerTime: r.self.TriggerTime,
		Lat:         r.self.Position.Lat,
		Lon:         r.self.Position.Lon,
		AltMSL:      r.self.Position.AltMSL,
		VelN:        r.self.Velocity.N,
		VelE:        r.self.Velocity.E,
		VelD:        r.self.Velocity.D,
		Yaw:         r.self.Yaw,
		Battery:     r.self.Battery,
		Follow:      r.self.FollowSlot,
	}
}
