// UDP transport: inbound receive loop and periodic telemetry broadcast.
package transport

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"sync"
	"time"

	"swarmlink/internal/config"
	"swarmlink/internal/packet"
	"swarmlink/internal/swarm"
)

// Config wires one agent's UDP endpoint.
type Config struct {
	BindAddr     string // e.g. ":14550"
	GCSAddr      string // ground station host:port
	Roster       []config.RosterEntry
	SelfID       uint16
	Broadcast    bool          // also send telemetry to every roster peer
	SendInterval time.Duration // telemetry period
	RecvPause    time.Duration // optional yield between datagrams
}

// Transport owns the socket and the two loops. Receive errors never
// propagate past the loop; a failure to bind does.
type Transport struct {
	conn      *net.UDPConn
	replica   *swarm.Replica
	gcs       *net.UDPAddr
	peers     []*net.UDPAddr
	broadcast bool
	interval  time.Duration
	recvPause time.Duration
	log       *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New binds the agent's UDP endpoint and resolves the ground station and
// roster addresses. A bind or resolve failure is fatal for this agent's
// transport; the caller owns restart policy.
func New(cfg Config, replica *swarm.Replica, logger *log.Logger) (*Transport, error) {
	if logger == nil {
		logger = log.Default()
	}
	bind, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve bind addr %q: %w", cfg.BindAddr, err)
	}
	conn, err := net.ListenUDP("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("transport: bind %q: %w", cfg.BindAddr, err)
	}
	gcs, err := net.ResolveUDPAddr("udp", cfg.GCSAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: resolve gcs addr %q: %w", cfg.GCSAddr, err)
	}
	var peers []*net.UDPAddr
	for _, e := range cfg.Roster {
		if e.HwID == cfg.SelfID {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", e.IP, e.Port))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: resolve peer %d: %w", e.HwID, err)
		}
		peers = append(peers, addr)
	}
	interval := cfg.SendInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Transport{
		conn:      conn,
		replica:   replica,
		gcs:       gcs,
		peers:     peers,
		broadcast: cfg.Broadcast,
		interval:  interval,
		recvPause: cfg.RecvPause,
		log:       logger,
	}, nil
}

// LocalAddr returns the bound UDP address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Start launches the receive and send loops. Both stop when ctx is
// cancelled or Stop is called.
func (t *Transport) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(2)
	go t.receiveLoop(ctx)
	go t.sendLoop(ctx)
}

// Stop closes the socket and waits for both loops to exit.
func (t *Transport) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.conn.Close()
	t.wg.Wait()
}

func (t *Transport) receiveLoop(ctx context.Context) {
	defer t.wg.Done()
	buf := make([]byte, packet.MaxDatagram)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Error("udp receive failed", "err", err)
			// Transient receive errors back off briefly instead of
			// spinning on a hot socket.
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}
		p, err := packet.Decode(buf[:n])
		if err != nil {
			t.log.Warn("dropping malformed datagram", "from", from, "bytes", n, "err", err)
			continue
		}
		t.replica.Apply(p)
		if t.recvPause > 0 {
			select {
			case <-time.After(t.recvPause):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *Transport) sendLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sendTelemetry()
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) sendTelemetry() {
	buf, err := packet.Encode(t.replica.TelemetryPacket())
	if err != nil {
		t.log.Error("telemetry encode failed", "err", err)
		return
	}
	if _, err := t.conn.WriteToUDP(buf, t.gcs); err != nil {
		t.log.Warn("telemetry send to gcs failed", "err", err)
	}
	if !t.broadcast {
		return
	}
	for _, peer := range t.peers {
		if _, err := t.conn.WriteToUDP(buf, peer); err != nil {
			t.log.Warn("telemetry send to peer failed", "peer", peer, "err", err)
		}
	}
}
