package mission

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"swarmlink/internal/swarm"
)

// DefaultHandlers builds the fixed mission-code dispatch table. Every
// recognized code maps to exactly one handler; anything else falls
// through to the scheduler's unknown-mission handler.
func DefaultHandlers(fc FlightController, takeoffAlt float64, logger *log.Logger) map[swarm.MissionCode]Handler {
	if logger == nil {
		logger = log.Default()
	}
	return map[swarm.MissionCode]Handler{
		swarm.MissionDroneShow:  &ShowHandler{FC: fc, TakeoffAlt: takeoffAlt, Log: logger},
		swarm.MissionSmartSwarm: &SwarmHandler{FC: fc, TakeoffAlt: takeoffAlt, Log: logger},
		swarm.MissionTakeoff:    &TakeoffHandler{FC: fc, Altitude: takeoffAlt},
		swarm.MissionLand:       &LandHandler{FC: fc},
		swarm.MissionHold:       &HoldHandler{FC: fc},
	}
}

// waitUntil sleeps until the wall clock reaches t, returning early with
// an error when ctx is cancelled. Missions dispatch triggerLeadSeconds
// ahead of time; this is where the lead is spent.
func waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShowHandler arms at the exact trigger time and launches into the
// choreography. The trajectory itself is flown by the actuation layer.
type ShowHandler struct {
	FC         FlightController
	TakeoffAlt float64
	Log        *log.Logger
}

func (h *ShowHandler) Execute(ctx context.Context, _, triggerTime time.Time) (bool, string) {
	if err := waitUntil(ctx, triggerTime); err != nil {
		return false, "show cancelled before start"
	}
	if err := h.FC.Arm(ctx); err != nil {
		return false, fmt.Sprintf("arm failed: %v", err)
	}
	if err := h.FC.Takeoff(ctx, h.TakeoffAlt); err != nil {
		return false, fmt.Sprintf("takeoff failed: %v", err)
	}
	h.Log.Info("drone show started", "trigger_time", triggerTime)
	return true, "show started"
}

// SwarmHandler brings the vehicle up for follow mode and then holds the
// mission open; the follower loop owns setpoints while the mission runs.
// The mission ends only by override (typically a land command).
type SwarmHandler struct {
	FC         FlightController
	TakeoffAlt float64
	Log        *log.Logger
}

func (h *SwarmHandler) Execute(ctx context.Context, _, triggerTime time.Time) (bool, string) {
	if err := waitUntil(ctx, triggerTime); err != nil {
		return false, "swarm mission cancelled before start"
	}
	if err := h.FC.Arm(ctx); err != nil {
		return false, fmt.Sprintf("arm failed: %v", err)
	}
	if err := h.FC.Takeoff(ctx, h.TakeoffAlt); err != nil {
		return false, fmt.Sprintf("takeoff failed: %v", err)
	}
	h.Log.Info("smart swarm active", "trigger_time", triggerTime)
	<-ctx.Done()
	return true, "smart swarm ended"
}

// TakeoffHandler arms and climbs to a fixed altitude.
type TakeoffHandler struct {
	FC       FlightController
	Altitude float64
}

func (h *TakeoffHandler) Execute(ctx context.Context, _, triggerTime time.Time) (bool, string) {
	if err := waitUntil(ctx, triggerTime); err != nil {
		return false, "takeoff cancelled before start"
	}
	if err := h.FC.Arm(ctx); err != nil {
		return false, fmt.Sprintf("arm failed: %v", err)
	}
	if err := h.FC.Takeoff(ctx, h.Altitude); err != nil {
		return false, fmt.Sprintf("takeoff failed: %v", err)
	}
	return true, fmt.Sprintf("took off to %.1f m", h.Altitude)
}

// LandHandler commands an immediate landing; it does not wait for the
// trigger window since land overrides are time critical.
type LandHandler struct {
	FC FlightController
}

func (h *LandHandler) Execute(ctx context.Context, _, _ time.Time) (bool, string) {
	if err := h.FC.Land(ctx); err != nil {
		return false, fmt.Sprintf("land failed: %v", err)
	}
	return true, "landing"
}

// HoldHandler commands a position hold.
type HoldHandler struct {
	FC FlightController
}

func (h *HoldHandler) Execute(ctx context.Context, _, _ time.Time) (bool, string) {
	if err := h.FC.Hold(ctx); err != nil {
		return false, fmt.Sprintf("hold failed: %v", err)
	}
	return true, "holding position"
}
