// Mission trigger state machine and handler dispatch.
package mission

import (
	"context"
	"time"

	"swarmlink/internal/nav"
	"swarmlink/internal/swarm"
)

// Handler runs one mission. Execute blocks until the mission finishes or
// ctx is cancelled; it must observe cancellation promptly and tear down
// anything it started before returning. The returned message is logged
// either way.
type Handler interface {
	Execute(ctx context.Context, now, triggerTime time.Time) (bool, string)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, now, triggerTime time.Time) (bool, string)

func (f HandlerFunc) Execute(ctx context.Context, now, triggerTime time.Time) (bool, string) {
	return f(ctx, now, triggerTime)
}

// Setpoint is the desired state handed to the flight-actuation layer.
type Setpoint struct {
	Pos nav.NED
	Vel swarm.VelocityNED
	Yaw float64
}

// FlightController is the port to the flight-actuation layer. The
// implementation is an external collaborator; every call is opaque and
// may block until the vehicle acknowledges.
type FlightController interface {
	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	Takeoff(ctx context.Context, altitude float64) error
	Land(ctx context.Context) error
	Hold(ctx context.Context) error
	SetSetpoint(ctx context.Context, sp Setpoint) error
}
