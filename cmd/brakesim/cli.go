package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"

	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/dispatcher"
	"github.com/OCAP2/brakesim/internal/influx"
	"github.com/OCAP2/brakesim/internal/logging"
	"github.com/OCAP2/brakesim/internal/monitor"
	"github.com/OCAP2/brakesim/internal/sim"
	"github.com/OCAP2/brakesim/internal/storage"
	v1 "github.com/OCAP2/brakesim/internal/storage/export/v1"
	"github.com/OCAP2/brakesim/internal/stream"
	"github.com/OCAP2/brakesim/internal/worker"
	"github.com/OCAP2/brakesim/pkg/core"
)

// cmdRun simulates the configured consist. With restoreID set the run
// starts from the latest snapshot of that session.
func cmdRun(ctx context.Context, configDir, restoreID string, stdout io.Writer) error {
	defer teardown()
	if err := setup(configDir, true); err != nil {
		return err
	}

	simCfg := config.GetSimConfig()
	consistCfg, err := config.GetConsistConfig()
	if err != nil {
		return err
	}
	storageCfg := config.GetStorageConfig()

	var restore *core.Snapshot
	if restoreID != "" {
		snap, err := latestSnapshot(storageCfg, restoreID)
		if err != nil {
			return err
		}
		restore = &snap
		Logger.Info("Restoring session", "session", restoreID, "simTime", snap.SimTime)
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger), OTelProvider.Meter("github.com/OCAP2/brakesim/internal/dispatcher"))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps := worker.Dependencies{
		LogManager:     SlogManager,
		SessionContext: sessionContext,
		Backend:        backend,
	}

	var telemetry *influx.Manager
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		m := influx.NewManager(ZLogger, influxCfg)
		if err := m.Connect(ctx); err != nil {
			Logger.Warn("InfluxDB telemetry unavailable", "error", err)
		} else {
			telemetry = m
			deps.Telemetry = m
		}
	}

	var events *stream.Server
	if streamCfg := config.GetStreamConfig(); streamCfg.Enabled {
		s := stream.New(Logger)
		if err := s.Start(streamCfg.Address); err != nil {
			Logger.Warn("Event stream unavailable", "error", err)
		} else {
			events = s
			deps.Stream = s
		}
	}

	worker.NewManager(deps).RegisterHandlers(d)

	var status *monitor.Service
	runner, err := sim.New(sim.Dependencies{
		LogManager:     SlogManager,
		SessionContext: sessionContext,
		Dispatcher:     d,
		Meter:          OTelProvider.Meter("github.com/OCAP2/brakesim/internal/sim"),
		Status: func() {
			if status != nil && !simCfg.RealTime {
				status.Report()
			}
		},
	}, simCfg, consistCfg)
	if err != nil {
		d.Close()
		backend.Close()
		return err
	}
	activeRunner.Store(runner)
	defer activeRunner.Store(nil)

	monitorDeps := monitor.Dependencies{
		LogManager:     SlogManager,
		SessionContext: sessionContext,
		Progress:       runner,
		StatusDir:      viper.GetString("logsDir"),
	}
	if q, ok := backend.(monitor.WriteQueue); ok {
		monitorDeps.WriteQueue = q
	}
	if telemetry != nil {
		monitorDeps.Telemetry = telemetry
	}
	status = monitor.NewService(monitorDeps)
	if simCfg.RealTime {
		if err := status.Start(simCfg.StatusEvery); err != nil {
			Logger.Warn("Status monitor not started", "error", err)
		}
	}

	if restore != nil {
		if err := runner.Restore(*restore); err != nil {
			d.Close()
			backend.Close()
			return err
		}
	}

	runErr := runner.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		Logger.Info("Run interrupted", "simTime", runner.SimTime())
		runErr = nil
	}

	status.Stop()
	d.Close()
	if err := backend.Close(); err != nil {
		Logger.Error("Failed to close storage", "error", err)
	}
	if telemetry != nil {
		if err := telemetry.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if events != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := events.Close(shutdownCtx); err != nil {
			Logger.Error("Failed to close event stream", "error", err)
		}
		cancel()
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(stdout, "session %s: %d ticks, %.1fs simulated\n", sessionContext.ID(), runner.Ticks(), runner.SimTime())
	if exp, ok := backend.(storage.Exportable); ok && exp.ExportedFilePath() != "" {
		fmt.Fprintln(stdout, "exported", exp.ExportedFilePath())
	}
	return nil
}

func latestSnapshot(storageCfg config.StorageConfig, sessionID string) (core.Snapshot, error) {
	reader, closeReader, err := openReader(storageCfg)
	if err != nil {
		return core.Snapshot{}, err
	}
	defer closeReader()
	snap, err := reader.LatestSnapshot(sessionID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("no snapshot to restore for session %s: %w", sessionID, err)
	}
	return snap, nil
}

// cmdSessions lists the stored sessions, newest first.
func cmdSessions(configDir string, stdout io.Writer) error {
	defer teardown()
	if err := setup(configDir, false); err != nil {
		return err
	}

	reader, closeReader, err := openReader(config.GetStorageConfig())
	if err != nil {
		return err
	}
	defer closeReader()

	sessions, err := reader.Sessions()
	if err != nil {
		return err
	}
	return writeSessions(stdout, sessions)
}

func writeSessions(w io.Writer, sessions []core.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONSIST\tFAMILY\tCARS\tSTARTED\tENDED")
	for _, s := range sessions {
		ended := "-"
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Consist, s.Family, s.CarCount, s.StartedAt.UTC().Format(time.RFC3339), ended)
	}
	return tw.Flush()
}

// cmdExport writes one stored session as a JSON export to the memory
// backend's output directory.
func cmdExport(sessionID, configDir string, stdout io.Writer) error {
	defer teardown()
	if err := setup(configDir, false); err != nil {
		return err
	}

	storageCfg := config.GetStorageConfig()
	reader, closeReader, err := openReader(storageCfg)
	if err != nil {
		return err
	}
	defer closeReader()

	data, err := exportData(reader, sessionID)
	if err != nil {
		return err
	}
	path, err := v1.WriteFile(storageCfg.Memory.OutputDir, data, storageCfg.Memory.CompressOutput)
	if err != nil {
		return err
	}
	Logger.Info("Session exported", "session", sessionID, "path", path)
	fmt.Fprintln(stdout, path)
	return nil
}

func exportData(r storage.Reader, sessionID string) (*v1.SessionData, error) {
	s, err := r.Session(sessionID)
	if err != nil {
		return nil, err
	}
	snaps, err := r.Snapshots(sessionID)
	if err != nil {
		return nil, err
	}
	events, err := r.BrakeEvents(sessionID)
	if err != nil {
		return nil, err
	}
	return &v1.SessionData{Session: s, Snapshots: snaps, Events: events}, nil
}
