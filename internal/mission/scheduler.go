package mission

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmlink/internal/swarm"
)

// Scheduler polls the replica for armed missions and runs at most one at
// a time. A new trigger while a mission is active cancels the running one
// and waits for it to acknowledge before starting the next; that ordering
// keeps two handlers from ever issuing setpoints concurrently.
type Scheduler struct {
	replica    *swarm.Replica
	handlers   map[swarm.MissionCode]Handler
	unknown    Handler
	period     time.Duration
	lead       time.Duration
	resetState bool
	log        *log.Logger
	now        func() time.Time

	// startMu serializes the whole check-cancel-wait-start sequence;
	// stateMu only guards the active pointer.
	startMu sync.Mutex
	stateMu sync.Mutex
	active  *missionContext
}

// missionContext is the single cancellable unit of running mission work.
type missionContext struct {
	id      uuid.UUID
	code    swarm.MissionCode
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// Config parameterizes a Scheduler.
type Config struct {
	Period     time.Duration // poll period (1/scheduleFrequency)
	Lead       time.Duration // dispatch this far ahead of trigger_time
	ResetState bool          // return state to idle after completion
}

// NewScheduler builds a scheduler over the given handler table. Codes
// missing from the table route to the unknown-mission handler.
func NewScheduler(replica *swarm.Replica, handlers map[swarm.MissionCode]Handler, cfg Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	period := cfg.Period
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	return &Scheduler{
		replica:    replica,
		handlers:   handlers,
		unknown:    unknownHandler{},
		period:     period,
		lead:       cfg.Lead,
		resetState: cfg.ResetState,
		log:        logger,
		now:        time.Now,
	}
}

// SetClock overrides the scheduler's time source. Tests only.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run polls until ctx is cancelled, then waits for any active mission to
// wind down.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Evaluate(ctx)
		case <-ctx.Done():
			s.stateMu.Lock()
			active := s.active
			s.stateMu.Unlock()
			if active != nil {
				<-active.done
			}
			return
		}
	}
}

// Evaluate runs one poll cycle: fire the trigger if the own record is
// armed and its window has opened.
func (s *Scheduler) Evaluate(ctx context.Context) {
	rec := s.replica.Self()
	if rec.State != swarm.StateArmed {
		return
	}
	trigger := time.Unix(int64(rec.TriggerTime), 0)
	if s.now().Before(trigger.Add(-s.lead)) {
		return
	}
	// Flip to triggered first so the same arm cannot re-fire; the swap
	// fails if a newer command re-armed the record in the meantime.
	rec, ok := s.replica.Trigger(rec.TriggerTime)
	if !ok {
		return
	}
	s.launch(ctx, rec, trigger)
}

func (s *Scheduler) launch(ctx context.Context, rec swarm.AgentRecord, trigger time.Time) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	// Steal the active mission before cancelling it: once stolen, its
	// completion path will not reset replica state out from under the
	// mission we are about to start.
	s.stateMu.Lock()
	old := s.active
	s.active = nil
	s.stateMu.Unlock()
	if old != nil {
		s.log.Info("cancelling active mission for override",
			"mission_id", old.id, "code", old.code, "new_code", rec.Mission)
		old.cancel()
		<-old.done
	}

	handler, ok := s.handlers[rec.Mission]
	if !ok {
		handler = s.unknown
	}

	mctx := &missionContext{
		id:      uuid.New(),
		code:    rec.Mission,
		started: s.now(),
		done:    make(chan struct{}),
	}
	runCtx, cancel := context.WithCancel(ctx)
	mctx.cancel = cancel

	s.stateMu.Lock()
	s.active = mctx
	s.stateMu.Unlock()

	s.log.Info("mission dispatched",
		"mission_id", mctx.id, "code", rec.Mission, "trigger_time", trigger)

	go func() {
		defer close(mctx.done)
		defer cancel()
		ok, msg := handler.Execute(runCtx, s.now(), trigger)
		if ok {
			s.log.Info("mission completed", "mission_id", mctx.id, "code", mctx.code, "msg", msg)
		} else {
			s.log.Warn("mission failed", "mission_id", mctx.id, "code", mctx.code, "msg", msg)
		}
		if s.clearActive(mctx) && s.resetState {
			s.replica.ResetMission()
		}
	}()
}

// clearActive removes mctx from the active slot and reports whether it
// was still installed (false when an override already stole it).
func (s *Scheduler) clearActive(mctx *missionContext) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.active != mctx {
		return false
	}
	s.active = nil
	return true
}

// Active reports whether a mission is currently running.
func (s *Scheduler) Active() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.active != nil
}

type unknownHandler struct{}

func (unknownHandler) Execute(_ context.Context, _, _ time.Time) (bool, string) {
	return false, "unknown mission code"
}
