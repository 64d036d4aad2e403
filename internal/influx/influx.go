// Package influx writes per-car brake telemetry and pressure events to
// InfluxDB, falling back to a gzipped line-protocol file when the server
// cannot be reached.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/pkg/core"
)

// ErrDisabled is returned by Connect when telemetry is switched off.
var ErrDisabled = errors.New("influx telemetry disabled")

// Measurement names.
const (
	MeasurementCar   = "car_brake"
	MeasurementEvent = "brake_event"
	MeasurementRun   = "run_status"
)

// PerformanceBucket receives run status points next to the telemetry bucket.
const PerformanceBucket = "brakesim_performance"

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile io.Closer
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: []string{cfg.Bucket, PerformanceBucket},
		Logger:      log,
		cfg:         cfg,
	}
}

// Connect establishes a connection to InfluxDB. When the server does not
// answer and a backup directory is configured, points go to a gzip file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		if m.cfg.BackupDir == "" {
			return fmt.Errorf("influxdb not reachable and no backup directory set: %v", err)
		}
		if err := m.openBackup(); err != nil {
			return err
		}
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	path := filepath.Join(m.cfg.BackupDir, fmt.Sprintf("brakesim_influx.%s.lp.gz", time.Now().UTC().Format("20060102_150405")))
	m.Logger.Info().Str("backupPath", path).Msg("Writing telemetry to backup file")

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// 30 day retention; telemetry is only useful while tuning a run.
	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		m.Writers[bucket] = m.Client.WriteAPI(m.cfg.Org, bucket)

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, m.Writers[bucket].Errors())
	}

	m.Logger.Debug().Strs("buckets", m.BucketNames).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteStatus writes one telemetry point per car.
func (m *Manager) WriteStatus(sessionID string, simTime float64, cars []brake.Status, ts time.Time) error {
	var errs []error
	for _, st := range cars {
		if err := m.WritePoint(m.cfg.Bucket, StatusPoint(sessionID, simTime, st, ts)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteEvent writes a pressure-change event.
func (m *Manager) WriteEvent(e core.BrakeEvent, ts time.Time) error {
	return m.WritePoint(m.cfg.Bucket, EventPoint(e, ts))
}

// WriteRunStatus records loop health into the performance bucket.
func (m *Manager) WriteRunStatus(sessionID string, ticks uint64, simTime float64, queued int, lastWrite time.Duration, ts time.Time) error {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementRun).
		AddTag("session", sessionID).
		AddField("ticks", int64(ticks)).
		AddField("sim_time", simTime).
		AddField("queued_events", queued).
		AddField("last_write_ms", float64(lastWrite.Microseconds())/1000).
		SetTime(ts)
	return m.WritePoint(PerformanceBucket, p)
}

// Close flushes pending points and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// StatusPoint converts one car's status into a telemetry point. Reservoirs
// the car does not have are left out.
func StatusPoint(sessionID string, simTime float64, st brake.Status, ts time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementCar).
		AddTag("session", sessionID).
		AddTag("car", st.CarID).
		AddTag("kind", st.Kind).
		AddField("valve", st.Valve).
		AddField("sim_time", simTime).
		AddField("brake_pipe", st.BrakePipe).
		AddField("cylinder", st.Cylinder).
		AddField("force_n", st.Force).
		AddField("handbrake_pct", st.Handbrake).
		AddField("braking", st.Braking).
		SetTime(ts)

	optional := []struct {
		name string
		v    *float64
	}{
		{"brake_pipe_inhg", st.BrakePipeInHg},
		{"main_res_pipe", st.MainResPipe},
		{"engine_brake", st.EngineBrake},
		{"main_res", st.MainRes},
		{"aux", st.Aux},
		{"emergency_res", st.Emergency},
		{"control_res", st.Control},
		{"vacuum_res", st.VacuumRes},
	}
	for _, f := range optional {
		if f.v != nil {
			p.AddField(f.name, *f.v)
		}
	}
	return p
}

// EventPoint converts a pressure-change event into a point.
func EventPoint(e core.BrakeEvent, ts time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementEvent).
		AddTag("session", e.SessionID).
		AddTag("car", e.CarID).
		AddTag("kind", e.Kind).
		AddField("pressure", e.Pressure).
		AddField("sim_time", e.SimTime).
		SetTime(ts)
}
