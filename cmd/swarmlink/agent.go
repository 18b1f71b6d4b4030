package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"swarmlink/internal/config"
	"swarmlink/internal/detector"
	"swarmlink/internal/estimator"
	"swarmlink/internal/follow"
	"swarmlink/internal/logging"
	"swarmlink/internal/mission"
	"swarmlink/internal/nav"
	"swarmlink/internal/swarm"
	"swarmlink/internal/transport"
)

var (
	agentConfigPath string
	agentSchemaPath string
	agentLogLevel   string
)

// Filter tuning for the leader estimate. Process variance reflects the
// expected acceleration of a drone in formation flight.
const (
	leaderProcessVar = 1.0
	leaderPosVar     = 4.0
	leaderVelVar     = 0.25
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the on-board coordination agent",
	Long:  "agent joins the swarm on its UDP port, shares telemetry, and executes armed missions at their trigger time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(agentConfigPath, agentSchemaPath)
		if err != nil {
			return err
		}

		logger := logging.ForAgent(logging.New(agentLogLevel), cfg.HwID)
		slog.SetDefault(logger)

		entry := cfg.SwarmEntryFor(cfg.HwID)
		offset := swarm.OffsetNED{N: entry.OffsetN, E: entry.OffsetE, Alt: entry.OffsetAlt}
		posID := uint16(0)
		if self, ok := cfg.RosterEntryFor(cfg.HwID); ok {
			posID = self.PosID
		}
		replica := swarm.NewReplica(cfg.HwID, posID, entry.Follow, offset, logger)

		tr, err := transport.New(transport.Config{
			BindAddr:     fmt.Sprintf(":%d", cfg.UDPPort),
			GCSAddr:      fmt.Sprintf("%s:%d", cfg.GCSIP, cfg.GCSPort),
			Roster:       cfg.Roster,
			SelfID:       cfg.HwID,
			Broadcast:    cfg.Broadcast,
			SendInterval: cfg.TelemetryInterval(),
		}, replica, logger)
		if err != nil {
			return err
		}

		fc := &logFlightController{log: logger}
		sched := mission.NewScheduler(replica,
			mission.DefaultHandlers(fc, cfg.TakeoffAltitudeM, logger),
			mission.Config{
				Period:     cfg.SchedulePeriod(),
				Lead:       cfg.TriggerLead(),
				ResetState: cfg.ResetStateAfterMission,
			}, logger)

		origin := nav.StaticOrigin(nav.Geodetic{
			Lat: cfg.Origin.Lat, Lon: cfg.Origin.Lon, Alt: cfg.Origin.Alt,
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		tr.Start(ctx)
		logger.Info("agent up",
			"addr", tr.LocalAddr().String(),
			"pos_id", posID,
			"follow", entry.Follow)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()

		if cfg.AutoDetect {
			det := detector.New(replica, origin, cfg.FormationSlots(),
				cfg.MaxDeviationM, cfg.AutoDetectInterval(), logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				det.Run(ctx)
			}()
		}

		if entry.Follow != 0 {
			leaderHw, ok := cfg.LeaderFor(uint16(entry.Follow))
			if !ok {
				tr.Stop()
				return fmt.Errorf("agent: no roster entry occupies follow slot %d", entry.Follow)
			}
			est := estimator.New(leaderProcessVar, leaderPosVar, leaderVelVar)
			fl := follow.New(replica, est, fc, origin, leaderHw, cfg.FollowInterval(), logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				fl.Run(ctx)
			}()
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigs:
		case <-ctx.Done():
		}

		cancel()
		tr.Stop()
		wg.Wait()
		logger.Info("agent stopped")
		return nil
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentConfigPath, "config", "config/swarm.yaml", "Path to agent configuration YAML")
	agentCmd.Flags().StringVar(&agentSchemaPath, "schema", "schemas/swarm.cue", "Path to CUE schema file")
	agentCmd.Flags().StringVar(&agentLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// logFlightController stands in for the flight-actuation link when the
// agent runs without a vehicle attached. Every call succeeds and is
// logged, so mission sequencing can be exercised on the bench.
type logFlightController struct {
	log *slog.Logger
}

func (f *logFlightController) Arm(context.Context) error {
	f.log.Info("flight: arm")
	return nil
}

func (f *logFlightController) Disarm(context.Context) error {
	f.log.Info("flight: disarm")
	return nil
}

func (f *logFlightController) Takeoff(_ context.Context, altitude float64) error {
	f.log.Info("flight: takeoff", "altitude_m", altitude)
	return nil
}

func (f *logFlightController) Land(context.Context) error {
	f.log.Info("flight: land")
	return nil
}

func (f *logFlightController) Hold(context.Context) error {
	f.log.Info("flight: hold")
	return nil
}

func (f *logFlightController) SetSetpoint(_ context.Context, sp mission.Setpoint) error {
	f.log.Debug("flight: setpoint",
		"n", sp.Pos.N, "e", sp.Pos.E, "d", sp.Pos.D, "yaw", sp.Yaw)
	return nil
}
