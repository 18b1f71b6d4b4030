package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"swarmlink/internal/monitor"
	"swarmlink/internal/packet"
)

var monitorListen string

// packetSink is what the listen loop feeds; the TUI and the line writer
// both satisfy it.
type packetSink interface {
	Feed(p packet.Packet, from string, at time.Time)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch swarm traffic on a UDP port",
	Long: "monitor binds a ground-side UDP port and renders every decoded " +
		"command and telemetry datagram. With a terminal attached it runs a " +
		"full-screen fleet view; otherwise it prints one line per packet.",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := net.ResolveUDPAddr("udp", monitorListen)
		if err != nil {
			return fmt.Errorf("monitor: resolve %q: %w", monitorListen, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("monitor: bind %q: %w", monitorListen, err)
		}
		defer conn.Close()

		var sink packetSink
		var ui *monitor.Monitor
		if term.IsTerminal(int(os.Stdout.Fd())) {
			ui = monitor.New()
			sink = ui
		} else {
			sink = monitor.NewLineWriter()
		}

		go func() {
			buf := make([]byte, packet.MaxDatagram)
			for {
				n, from, err := conn.ReadFromUDP(buf)
				if err != nil {
					if errors.Is(err, net.ErrClosed) {
						return
					}
					continue
				}
				p, err := packet.Decode(buf[:n])
				if err != nil {
					continue
				}
				sink.Feed(p, from.String(), time.Now())
			}
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		if ui != nil {
			select {
			case <-sigs:
				_ = ui.Close()
			case <-ui.Done():
			}
		} else {
			<-sigs
		}
		return nil
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorListen, "listen", ":14650", "UDP host:port to listen on")
}
