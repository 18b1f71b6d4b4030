package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"swarmlink/internal/config"
	"swarmlink/internal/packet"
	"swarmlink/internal/swarm"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// gcsSocket binds a loopback UDP socket standing in for the ground station.
func gcsSocket(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to bind gcs socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTransport_ReceiveAppliesCommand(t *testing.T) {
	gcs := gcsSocket(t)
	replica := swarm.NewReplica(3, 3, 0, swarm.OffsetNED{}, nil)
	tr, err := New(Config{
		BindAddr:     "127.0.0.1:0",
		GCSAddr:      gcs.LocalAddr().String(),
		SelfID:       3,
		SendInterval: time.Hour, // keep the send loop quiet
	}, replica, nil)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	defer tr.Stop()

	buf, err := packet.Encode(packet.Packet{
		Kind: packet.KindCommand, HwID: 3, PosID: 3, Mission: 1, State: 1, TriggerTime: 1687840743,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gcs.WriteToUDP(buf, tr.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return replica.Self().State == swarm.StateArmed
	})
	self := replica.Self()
	if self.Mission != swarm.MissionDroneShow || self.TriggerTime != 1687840743 || self.PosID != 3 {
		t.Errorf("record does not reflect command: %+v", self)
	}
}

func TestTransport_MalformedDatagramIsDropped(t *testing.T) {
	gcs := gcsSocket(t)
	replica := swarm.NewReplica(3, 3, 0, swarm.OffsetNED{}, nil)
	tr, err := New(Config{
		BindAddr:     "127.0.0.1:0",
		GCSAddr:      gcs.LocalAddr().String(),
		SelfID:       3,
		SendInterval: time.Hour,
	}, replica, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	defer tr.Stop()

	dest := tr.LocalAddr().(*net.UDPAddr)
	if _, err := gcs.WriteToUDP([]byte{1, 2, 3}, dest); err != nil {
		t.Fatal(err)
	}

	// A valid packet right behind the garbage must still be applied: the
	// loop recovers by dropping, not by dying.
	buf, _ := packet.Encode(packet.Packet{Kind: packet.KindCommand, HwID: 3, State: 1, TriggerTime: 7})
	if _, err := gcs.WriteToUDP(buf, dest); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return replica.Self().TriggerTime == 7
	})
}

func TestTransport_SendsTelemetryToGCS(t *testing.T) {
	gcs := gcsSocket(t)
	replica := swarm.NewReplica(5, 2, 0, swarm.OffsetNED{}, nil)
	replica.SetOwnPose(swarm.Position{Lat: 48.2, Lon: 16.4, AltMSL: 50}, swarm.VelocityNED{N: 1}, 0.5, 15.9)

	tr, err := New(Config{
		BindAddr:     "127.0.0.1:0",
		GCSAddr:      gcs.LocalAddr().String(),
		SelfID:       5,
		SendInterval: 20 * time.Millisecond,
	}, replica, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	defer tr.Stop()

	gcs.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, packet.MaxDatagram)
	n, _, err := gcs.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("gcs read failed: %v", err)
	}
	p, err := packet.Decode(buf[:n])
	if err != nil {
		t.Fatalf("gcs received malformed telemetry: %v", err)
	}
	if p.Kind != packet.KindTelemetry || p.HwID != 5 || p.Lat != 48.2 {
		t.Errorf("unexpected telemetry: %+v", p)
	}
}

func TestTransport_BroadcastReachesPeers(t *testing.T) {
	gcs := gcsSocket(t)
	peer := gcsSocket(t)
	peerAddr := peer.LocalAddr().(*net.UDPAddr)

	replica := swarm.NewReplica(1, 1, 0, swarm.OffsetNED{}, nil)
	tr, err := New(Config{
		BindAddr: "127.0.0.1:0",
		GCSAddr:  gcs.LocalAddr().String(),
		Roster: []config.RosterEntry{
			{HwID: 1, IP: "127.0.0.1", Port: 1}, // self, skipped
			{HwID: 2, IP: "127.0.0.1", Port: peerAddr.Port},
		},
		SelfID:       1,
		Broadcast:    true,
		SendInterval: 20 * time.Millisecond,
	}, replica, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	defer tr.Stop()

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, packet.MaxDatagram)
	n, _, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	p, err := packet.Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if p.HwID != 1 {
		t.Errorf("peer received telemetry for hw %d, want 1", p.HwID)
	}
}

func TestTransport_StopTerminatesLoops(t *testing.T) {
	gcs := gcsSocket(t)
	replica := swarm.NewReplica(1, 1, 0, swarm.OffsetNED{}, nil)
	tr, err := New(Config{
		BindAddr:     "127.0.0.1:0",
		GCSAddr:      gcs.LocalAddr().String(),
		SelfID:       1,
		SendInterval: 10 * time.Millisecond,
	}, replica, nil)
	if err != nil {
		t.Fatal(err)
	}
	tr.Start(context.Background())

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}
