// Shared data model for the coordination agent.
package swarm

import (
	"fmt"
	"time"
)

// AgentState is the mission arming state carried in every packet.
type AgentState uint8

const (
	StateIdle      AgentState = 0
	StateArmed     AgentState = 1
	StateTriggered AgentState = 2
)

func (s AgentState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// MissionCode identifies the mission an agent is armed for.
type MissionCode uint8

const (
	MissionNone       MissionCode = 0
	MissionDroneShow  MissionCode = 1
	MissionSmartSwarm MissionCode = 2
	MissionTakeoff    MissionCode = 10
	MissionLand       MissionCode = 101
	MissionHold       MissionCode = 102
)

func (c MissionCode) String() string {
	switch c {
	case MissionNone:
		return "none"
	case MissionDroneShow:
		return "drone_show"
	case MissionSmartSwarm:
		return "smart_swarm"
	case MissionTakeoff:
		return "takeoff"
	case MissionLand:
		return "land"
	case MissionHold:
		return "hold"
	}
	return fmt.Sprintf("mission(%d)", uint8(c))
}

// Position holds geodetic coordinates with altitude above mean sea level.
type Position struct {
	Lat    float64
	Lon    float64
	AltMSL float64
}

// VelocityNED is a velocity vector in the local North-East-Down frame.
type VelocityNED struct {
	N float64
	E float64
	D float64
}

// OffsetNED is a follower's fixed offset from its leader. Alt is positive
// up, unlike the D axis.
type OffsetNED struct {
	N   float64
	E   float64
	Alt float64
}

// AgentRecord is the last-known state of one agent, own or peer.
type AgentRecord struct {
	HwID        uint16
	PosID       uint16
	Mission     MissionCode
	State       AgentState
	TriggerTime uint32 // Unix seconds; meaningful only while armed
	Position    Position
	Velocity    VelocityNED
	Yaw         float64
	Battery     float64
	FollowSlot  uint8 // nonzero: slot of the leader this agent follows
	Offset      OffsetNED
	LastUpdate  time.Time // receipt time of the newest packet
}
