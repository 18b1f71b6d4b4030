package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"swarmlink/internal/config"
	"swarmlink/internal/packet"
	"swarmlink/internal/swarm"
)

var (
	cmdConfigPath string
	cmdSchemaPath string
	cmdTarget     uint16
	cmdMission    string
	cmdState      string
	cmdIn         time.Duration
	cmdAt         string
	cmdAddr       string
)

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Send a mission command to swarm agents",
	Long: "command encodes a mission command datagram and sends it to one agent " +
		"(--to) or to every agent in the roster. The trigger time is absolute " +
		"(--at, RFC3339) or relative (--in).",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseMission(cmdMission)
		if err != nil {
			return err
		}
		state, err := parseState(cmdState)
		if err != nil {
			return err
		}
		trigger, err := resolveTrigger(cmdAt, cmdIn)
		if err != nil {
			return err
		}

		targets, err := resolveTargets()
		if err != nil {
			return err
		}

		conn, err := net.ListenUDP("udp", nil)
		if err != nil {
			return fmt.Errorf("command: open socket: %w", err)
		}
		defer conn.Close()

		for _, tgt := range targets {
			p := packet.Packet{
				Kind:        packet.KindCommand,
				HwID:        tgt.hwID,
				PosID:       tgt.posID,
				Mission:     uint8(code),
				State:       uint8(state),
				TriggerTime: trigger,
			}
			buf, err := packet.Encode(p)
			if err != nil {
				return err
			}
			if _, err := conn.WriteToUDP(buf, tgt.addr); err != nil {
				return fmt.Errorf("command: send to hw %d: %w", tgt.hwID, err)
			}
			fmt.Printf("sent %s/%s trigger=%d to hw=%d (%s)\n", code, state, trigger, tgt.hwID, tgt.addr)
		}
		return nil
	},
}

func init() {
	commandCmd.Flags().StringVar(&cmdConfigPath, "config", "config/swarm.yaml", "Path to agent configuration YAML (roster source)")
	commandCmd.Flags().StringVar(&cmdSchemaPath, "schema", "schemas/swarm.cue", "Path to CUE schema file")
	commandCmd.Flags().Uint16Var(&cmdTarget, "to", 0, "Target hardware ID (0 = every roster agent)")
	commandCmd.Flags().StringVar(&cmdMission, "mission", "", "Mission: none, drone_show, smart_swarm, takeoff, land, hold, or a numeric code")
	commandCmd.Flags().StringVar(&cmdState, "state", "armed", "State to command: idle or armed")
	commandCmd.Flags().DurationVar(&cmdIn, "in", 10*time.Second, "Trigger this long from now")
	commandCmd.Flags().StringVar(&cmdAt, "at", "", "Absolute trigger time, RFC3339 (overrides --in)")
	commandCmd.Flags().StringVar(&cmdAddr, "addr", "", "Send to this host:port instead of roster addresses (requires --to)")
	_ = commandCmd.MarkFlagRequired("mission")
}

type commandTarget struct {
	hwID  uint16
	posID uint16
	addr  *net.UDPAddr
}

func resolveTargets() ([]commandTarget, error) {
	if cmdAddr != "" {
		if cmdTarget == 0 {
			return nil, fmt.Errorf("command: --addr requires --to")
		}
		addr, err := net.ResolveUDPAddr("udp", cmdAddr)
		if err != nil {
			return nil, fmt.Errorf("command: resolve %q: %w", cmdAddr, err)
		}
		return []commandTarget{{hwID: cmdTarget, addr: addr}}, nil
	}

	cfg, err := config.Load(cmdConfigPath, cmdSchemaPath)
	if err != nil {
		return nil, err
	}
	var targets []commandTarget
	for _, e := range cfg.Roster {
		if cmdTarget != 0 && e.HwID != cmdTarget {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", e.IP, e.Port))
		if err != nil {
			return nil, fmt.Errorf("command: resolve hw %d: %w", e.HwID, err)
		}
		targets = append(targets, commandTarget{hwID: e.HwID, posID: e.PosID, addr: addr})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("command: hw %d not in roster", cmdTarget)
	}
	return targets, nil
}

func parseMission(s string) (swarm.MissionCode, error) {
	switch s {
	case "none":
		return swarm.MissionNone, nil
	case "drone_show", "show":
		return swarm.MissionDroneShow, nil
	case "smart_swarm", "swarm":
		return swarm.MissionSmartSwarm, nil
	case "takeoff":
		return swarm.MissionTakeoff, nil
	case "land":
		return swarm.MissionLand, nil
	case "hold":
		return swarm.MissionHold, nil
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return swarm.MissionCode(n), nil
	}
	return 0, fmt.Errorf("command: unknown mission %q", s)
}

func parseState(s string) (swarm.AgentState, error) {
	switch s {
	case "idle":
		return swarm.StateIdle, nil
	case "armed":
		return swarm.StateArmed, nil
	}
	return 0, fmt.Errorf("command: unknown state %q (idle or armed)", s)
}

// resolveTrigger converts the --at/--in flags into a unix-seconds
// trigger. Immediate missions like land still carry a timestamp; the
// handler decides whether to honor it.
func resolveTrigger(at string, in time.Duration) (uint32, error) {
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return 0, fmt.Errorf("command: parse --at: %w", err)
		}
		return uint32(t.Unix()), nil
	}
	return uint32(time.Now().Add(in).Unix()), nil
}
