// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RosterEntry describes one agent in the swarm: network endpoint plus its
// assigned formation slot and the slot's planned north/east offsets.
type RosterEntry struct {
	HwID  uint16  `yaml:"hw_id"`
	IP    string  `yaml:"ip"`
	Port  int     `yaml:"port"`
	PosID uint16  `yaml:"pos_id"`
	X     float64 `yaml:"x"` // planned north offset from origin, meters
	Y     float64 `yaml:"y"` // planned east offset from origin, meters
}

// SwarmEntry carries per-agent follow configuration. Follow is the slot
// number of the leader, 0 for leaders and solo agents.
type SwarmEntry struct {
	HwID      uint16  `yaml:"hw_id"`
	Follow    uint8   `yaml:"follow"`
	OffsetN   float64 `yaml:"offset_n"`
	OffsetE   float64 `yaml:"offset_e"`
	OffsetAlt float64 `yaml:"offset_alt"`
}

// Origin is the reference datum for local tangent-plane conversion.
type Origin struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
	Alt float64 `yaml:"alt"`
}

// FormationSlot is one candidate slot for position auto-detection.
type FormationSlot struct {
	PosID uint16
	X     float64 // north, meters
	Y     float64 // east, meters
}

// AgentConfig is the root configuration for one coordination agent.
type AgentConfig struct {
	HwID      uint16 `yaml:"hw_id"`
	UDPPort   int    `yaml:"udp_port"`
	GCSIP     string `yaml:"gcs_ip"`
	GCSPort   int    `yaml:"gcs_port"`
	Broadcast bool   `yaml:"broadcast"`

	TelemetryIntervalS float64 `yaml:"telemetry_interval_s"`
	ScheduleHz         float64 `yaml:"schedule_hz"`
	TriggerLeadS       float64 `yaml:"trigger_lead_s"`
	FollowIntervalS    float64 `yaml:"follow_interval_s"`

	AutoDetect          bool    `yaml:"auto_detect"`
	AutoDetectIntervalS float64 `yaml:"auto_detect_interval_s"`
	MaxDeviationM       float64 `yaml:"max_deviation_m"`

	ResetStateAfterMission bool    `yaml:"reset_state_after_mission"`
	TakeoffAltitudeM       float64 `yaml:"takeoff_altitude_m"`

	Origin Origin        `yaml:"origin"`
	Roster []RosterEntry `yaml:"roster"`
	Swarm  []SwarmEntry  `yaml:"swarm"`
}

// Load loads YAML config and validates it against a CUE schema.
func Load(configPath, cueSchemaPath string) (*AgentConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AgentConfig) applyDefaults() {
	if c.TelemetryIntervalS <= 0 {
		c.TelemetryIntervalS = 1
	}
	if c.ScheduleHz <= 0 {
		c.ScheduleHz = 10
	}
	if c.FollowIntervalS <= 0 {
		c.FollowIntervalS = 0.2
	}
	if c.AutoDetectIntervalS <= 0 {
		c.AutoDetectIntervalS = 5
	}
	if c.MaxDeviationM <= 0 {
		c.MaxDeviationM = 3
	}
	if c.TakeoffAltitudeM <= 0 {
		c.TakeoffAltitudeM = 10
	}
}

func (c *AgentConfig) check() error {
	if c.HwID == 0 {
		return fmt.Errorf("config: hw_id must be positive")
	}
	seen := make(map[uint16]bool, len(c.Roster))
	found := false
	for _, e := range c.Roster {
		if seen[e.HwID] {
			return fmt.Errorf("config: duplicate hw_id %d in roster", e.HwID)
		}
		seen[e.HwID] = true
		if e.HwID == c.HwID {
			found = true
		}
	}
	if len(c.Roster) > 0 && !found {
		return fmt.Errorf("config: own hw_id %d missing from roster", c.HwID)
	}
	return nil
}

// TelemetryInterval returns the telemetry send period.
func (c *AgentConfig) TelemetryInterval() time.Duration {
	return time.Duration(c.TelemetryIntervalS * float64(time.Second))
}

// SchedulePeriod returns the mission scheduler poll period.
func (c *AgentConfig) SchedulePeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.ScheduleHz)
}

// TriggerLead returns how far ahead of trigger_time a mission dispatches.
func (c *AgentConfig) TriggerLead() time.Duration {
	return time.Duration(c.TriggerLeadS * float64(time.Second))
}

// FollowInterval returns the follower setpoint recompute period.
func (c *AgentConfig) FollowInterval() time.Duration {
	return time.Duration(c.FollowIntervalS * float64(time.Second))
}

// AutoDetectInterval returns the slot auto-detection period.
func (c *AgentConfig) AutoDetectInterval() time.Duration {
	return time.Duration(c.AutoDetectIntervalS * float64(time.Second))
}

// RosterEntryFor returns the roster entry for hwID.
func (c *AgentConfig) RosterEntryFor(hwID uint16) (RosterEntry, bool) {
	for _, e := range c.Roster {
		if e.HwID == hwID {
			return e, true
		}
	}
	return RosterEntry{}, false
}

// SwarmEntryFor returns the swarm entry for hwID, or a zero entry (no
// follow) when the agent has none.
func (c *AgentConfig) SwarmEntryFor(hwID uint16) SwarmEntry {
	for _, e := range c.Swarm {
		if e.HwID == hwID {
			return e
		}
	}
	return SwarmEntry{HwID: hwID}
}

// FormationSlots derives the auto-detection candidates from the roster.
func (c *AgentConfig) FormationSlots() []FormationSlot {
	slots := make([]FormationSlot, 0, len(c.Roster))
	for _, e := range c.Roster {
		if e.PosID == 0 {
			continue
		}
		slots = append(slots, FormationSlot{PosID: e.PosID, X: e.X, Y: e.Y})
	}
	return slots
}

// LeaderFor resolves the hardware ID occupying formation slot posID.
func (c *AgentConfig) LeaderFor(posID uint16) (uint16, bool) {
	for _, e := range c.Roster {
		if e.PosID == posID {
			return e.HwID, true
		}
	}
	return 0, false
}
