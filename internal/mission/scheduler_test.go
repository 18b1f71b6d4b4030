package mission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"swarmlink/internal/packet"
	"swarmlink/internal/swarm"
)

// blockingHandler runs until cancelled and records its lifecycle.
type blockingHandler struct {
	started   chan struct{}
	cancelled atomic.Bool
	running   atomic.Int32
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{started: make(chan struct{})}
}

func (h *blockingHandler) Execute(ctx context.Context, _, _ time.Time) (bool, string) {
	h.running.Add(1)
	defer h.running.Add(-1)
	close(h.started)
	<-ctx.Done()
	h.cancelled.Store(true)
	return false, "cancelled"
}

// recordingHandler completes immediately and notes whether another
// handler was running at entry.
type recordingHandler struct {
	peer    *blockingHandler
	overlap atomic.Bool
	ran     chan struct{}
	once    sync.Once
}

func (h *recordingHandler) Execute(context.Context, time.Time, time.Time) (bool, string) {
	if h.peer != nil && h.peer.running.Load() > 0 {
		h.overlap.Store(true)
	}
	h.once.Do(func() { close(h.ran) })
	return true, "done"
}

func armedReplica(t *testing.T, code swarm.MissionCode, triggerTime uint32) *swarm.Replica {
	t.Helper()
	r := swarm.NewReplica(3, 3, 0, swarm.OffsetNED{}, nil)
	r.Apply(packet.Packet{
		Kind: packet.KindCommand, HwID: 3, PosID: 3,
		Mission: uint8(code), State: uint8(swarm.StateArmed), TriggerTime: triggerTime,
	})
	return r
}

func TestScheduler_TriggersArmedMission(t *testing.T) {
	r := armedReplica(t, swarm.MissionDroneShow, 100)
	h := &recordingHandler{ran: make(chan struct{})}
	s := NewScheduler(r, map[swarm.MissionCode]Handler{swarm.MissionDroneShow: h}, Config{}, nil)
	s.SetClock(func() time.Time { return time.Unix(101, 0) })

	s.Evaluate(context.Background())

	select {
	case <-h.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
	if r.Self().State != swarm.StateTriggered {
		t.Errorf("state = %v, want triggered", r.Self().State)
	}
}

func TestScheduler_DoesNotFireBeforeWindow(t *testing.T) {
	r := armedReplica(t, swarm.MissionDroneShow, 1000)
	h := &recordingHandler{ran: make(chan struct{})}
	s := NewScheduler(r, map[swarm.MissionCode]Handler{swarm.MissionDroneShow: h}, Config{Lead: 2 * time.Second}, nil)
	s.SetClock(func() time.Time { return time.Unix(997, 0) })

	s.Evaluate(context.Background())
	if r.Self().State != swarm.StateArmed {
		t.Errorf("state = %v, want still armed", r.Self().State)
	}

	// Inside the lead window it fires even though trigger_time is ahead.
	s.SetClock(func() time.Time { return time.Unix(999, 0) })
	s.Evaluate(context.Background())
	select {
	case <-h.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run inside lead window")
	}
}

func TestScheduler_NoRefireAfterTrigger(t *testing.T) {
	r := armedReplica(t, swarm.MissionDroneShow, 100)
	var runs atomic.Int32
	h := HandlerFunc(func(context.Context, time.Time, time.Time) (bool, string) {
		runs.Add(1)
		return true, "ok"
	})
	s := NewScheduler(r, map[swarm.MissionCode]Handler{swarm.MissionDroneShow: h}, Config{}, nil)
	s.SetClock(func() time.Time { return time.Unix(200, 0) })

	for i := 0; i < 5; i++ {
		s.Evaluate(context.Background())
	}
	waitForScheduler(t, s)
	if got := runs.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}
}

func TestScheduler_OverrideCancelsBeforeStart(t *testing.T) {
	r := armedReplica(t, swarm.MissionDroneShow, 100)
	show := newBlockingHandler()
	land := &recordingHandler{peer: show, ran: make(chan struct{})}
	s := NewScheduler(r, map[swarm.MissionCode]Handler{
		swarm.MissionDroneShow: show,
		swarm.MissionLand:      land,
	}, Config{}, nil)
	s.SetClock(func() time.Time { return time.Unix(200, 0) })

	s.Evaluate(context.Background())
	select {
	case <-show.started:
	case <-time.After(2 * time.Second):
		t.Fatal("show mission never started")
	}

	// Ground station overrides with a land command, trigger in the past.
	r.Apply(packet.Packet{
		Kind: packet.KindCommand, HwID: 3, PosID: 3,
		Mission: uint8(swarm.MissionLand), State: uint8(swarm.StateArmed), TriggerTime: 150,
	})
	s.Evaluate(context.Background())

	select {
	case <-land.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("land mission never ran")
	}
	if !show.cancelled.Load() {
		t.Error("show mission was not cancelled before land started")
	}
	if land.overlap.Load() {
		t.Error("both handlers were active at once")
	}
}

func TestScheduler_ResetStateAfterCompletion(t *testing.T) {
	r := armedReplica(t, swarm.MissionHold, 100)
	h := HandlerFunc(func(context.Context, time.Time, time.Time) (bool, string) {
		return true, "ok"
	})
	s := NewScheduler(r, map[swarm.MissionCode]Handler{swarm.MissionHold: h}, Config{ResetState: true}, nil)
	s.SetClock(func() time.Time { return time.Unix(200, 0) })

	s.Evaluate(context.Background())
	waitForScheduler(t, s)

	self := r.Self()
	if self.State != swarm.StateIdle || self.Mission != swarm.MissionNone {
		t.Errorf("record not reset after completion: %+v", self)
	}
}

func TestScheduler_UnknownCodeReportsFailure(t *testing.T) {
	r := armedReplica(t, swarm.MissionCode(200), 100)
	s := NewScheduler(r, map[swarm.MissionCode]Handler{}, Config{}, nil)
	s.SetClock(func() time.Time { return time.Unix(200, 0) })

	// Must not panic and must clear the mission slot again.
	s.Evaluate(context.Background())
	waitForScheduler(t, s)
	if s.Active() {
		t.Error("unknown mission left the scheduler busy")
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	r := swarm.NewReplica(3, 3, 0, swarm.OffsetNED{}, nil)
	s := NewScheduler(r, map[swarm.MissionCode]Handler{}, Config{Period: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func waitForScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Active() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scheduler still active")
}
