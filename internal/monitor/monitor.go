package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/brakesim/internal/logging"
	"github.com/OCAP2/brakesim/internal/session"
)

// StatusFileName is rewritten with the latest status on every report.
const StatusFileName = "status.txt"

// Progress is the simulation side of a run.
type Progress interface {
	Ticks() uint64
	SimTime() float64
	PendingEvents() int
}

// WriteQueue is a storage backend that batches writes.
type WriteQueue interface {
	Queued() int
	LastWriteDuration() time.Duration
}

// RunStatusWriter receives every report, e.g. a telemetry sink.
type RunStatusWriter interface {
	WriteRunStatus(sessionID string, ticks uint64, simTime float64, queued int, lastWrite time.Duration, ts time.Time) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager     *logging.SlogManager
	SessionContext *session.Context
	Progress       Progress
	WriteQueue     WriteQueue
	Telemetry      RunStatusWriter
	// StatusDir receives StatusFileName. Empty disables the file.
	StatusDir string
}

// RunStatus is one health sample of a run.
type RunStatus struct {
	Time                time.Time `json:"time"`
	SessionID           string    `json:"sessionId"`
	Ticks               uint64    `json:"ticks"`
	SimTime             float64   `json:"simTime"`
	PendingEvents       int       `json:"pendingEvents"`
	WriteQueue          int       `json:"writeQueue"`
	LastWriteDurationMs float64   `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	reportMu  sync.Mutex
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{
		deps: deps,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status and its JSON rendering.
func (s *Service) GetProgramStatus() (output []string, status RunStatus) {
	status = RunStatus{Time: time.Now().UTC()}
	if s.deps.SessionContext != nil {
		status.SessionID = s.deps.SessionContext.ID()
	}
	if s.deps.Progress != nil {
		status.Ticks = s.deps.Progress.Ticks()
		status.SimTime = s.deps.Progress.SimTime()
		status.PendingEvents = s.deps.Progress.PendingEvents()
	}
	if s.deps.WriteQueue != nil {
		status.WriteQueue = s.deps.WriteQueue.Queued()
		status.LastWriteDurationMs = float64(s.deps.WriteQueue.LastWriteDuration().Microseconds()) / 1000
	}

	statusStr, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		statusStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(statusStr))
	return output, status
}

// Report samples the run once: the status file is rewritten, the sample
// is sent to telemetry and logged.
func (s *Service) Report() RunStatus {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	logger := s.deps.LogManager.Logger()
	lines, status := s.GetProgramStatus()

	if s.deps.StatusDir != "" {
		if err := writeStatusFile(filepath.Join(s.deps.StatusDir, StatusFileName), lines); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Telemetry != nil {
		lastWrite := time.Duration(status.LastWriteDurationMs * float64(time.Millisecond))
		if err := s.deps.Telemetry.WriteRunStatus(status.SessionID, status.Ticks, status.SimTime, status.WriteQueue, lastWrite, status.Time); err != nil {
			logger.Error("Error writing run status", "error", err)
		}
	}

	logger.Info("Run status",
		"ticks", status.Ticks,
		"simTime", status.SimTime,
		"pendingEvents", status.PendingEvents,
		"writeQueue", status.WriteQueue,
		"lastWriteMs", status.LastWriteDurationMs,
	)
	return status
}

func writeStatusFile(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// Start reports every interval of wall-clock time until Stop.
func (s *Service) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", interval)
	}
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.deps.LogManager.Logger().Debug("Starting status monitor goroutine", "function", "startStatusMonitor")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.deps.SessionContext != nil && s.deps.SessionContext.ID() == "" {
					continue
				}
				s.Report()
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
