// Package gormstorage implements the storage.Backend and storage.Reader
// interfaces on any GORM connection. Snapshots are written synchronously so
// their IDs are known; brake events are queued and written in batches by a
// background goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/brakesim/internal/database"
	"github.com/OCAP2/brakesim/internal/logging"
	"github.com/OCAP2/brakesim/internal/model"
	"github.com/OCAP2/brakesim/internal/model/convert"
	"github.com/OCAP2/brakesim/internal/queue"
	"github.com/OCAP2/brakesim/internal/storage"
	"github.com/OCAP2/brakesim/pkg/core"

	"gorm.io/gorm"
)

// DefaultWriteInterval is how often queued events are written.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	WriteInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	events   *queue.Queue[model.BrakeEvent]
	stopChan chan struct{}
	done     chan struct{}
	writeMu  sync.Mutex

	lastWrite time.Duration
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:   deps,
		events: queue.New[model.BrakeEvent](),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("no database connection")
	}
	b.deps.LogManager.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.LogManager.WriteLog("setupDB", "Database setup complete", "INFO")

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Flush()
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// StartSession inserts the session row.
func (b *Backend) StartSession(s *core.Session) error {
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession writes queued events and stamps the end time.
func (b *Backend) EndSession(s *core.Session) error {
	if err := b.Flush(); err != nil {
		return err
	}
	res := b.deps.DB.Model(&model.Session{}).Where("id = ?", s.ID).Update("ended_at", s.EndedAt)
	if res.Error != nil {
		return fmt.Errorf("failed to end session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", s.ID, storage.ErrNotFound)
	}
	return nil
}

// SaveSnapshot inserts a snapshot and its cars in one transaction and
// assigns the snapshot ID.
func (b *Backend) SaveSnapshot(s *core.Snapshot) error {
	row := convert.CoreToSnapshot(*s)
	row.ID = 0
	for i := range row.Cars {
		row.Cars[i].SnapshotID = 0
	}
	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	s.ID = row.ID
	return nil
}

// RecordBrakeEvent converts and queues an event.
func (b *Backend) RecordBrakeEvent(e *core.BrakeEvent) error {
	row := convert.CoreToBrakeEvent(*e)
	row.Time = time.Now().UTC()
	b.events.Push(row)
	return nil
}

// Queued returns the number of events waiting to be written.
func (b *Backend) Queued() int {
	return b.events.Len()
}

// LastWriteDuration returns how long the last batch write took.
func (b *Backend) LastWriteDuration() time.Duration {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.lastWrite
}

// Flush writes every queued event now.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	err := writeQueue(b.deps.DB, b.events)
	b.lastWrite = time.Since(start)
	if err != nil {
		return fmt.Errorf("error creating brake events: %w", err)
	}
	return nil
}

// writeQueue writes all items from a queue to the database in a
// transaction. Items are pushed back when the write fails.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T]) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		q.Push(items...)
		return err
	}
	return tx.Commit().Error
}

func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.LogManager.WriteLog(":DB:WRITER:", err.Error(), "ERROR")
			}
		}
	}
}

// Sessions lists every session, newest first.
func (b *Backend) Sessions() ([]core.Session, error) {
	var rows []model.Session
	if err := b.deps.DB.Order("started_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]core.Session, len(rows))
	for i, r := range rows {
		out[i] = convert.SessionToCore(r)
	}
	return out, nil
}

// Session returns one session header.
func (b *Backend) Session(id string) (core.Session, error) {
	var row model.Session
	if err := b.deps.DB.Where("id = ?", id).First(&row).Error; err != nil {
		return core.Session{}, notFound(fmt.Sprintf("session %s", id), err)
	}
	return convert.SessionToCore(row), nil
}

func preloadCars(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// LatestSnapshot returns the snapshot with the highest simulation time.
func (b *Backend) LatestSnapshot(sessionID string) (core.Snapshot, error) {
	var row model.Snapshot
	err := b.deps.DB.Preload("Cars", preloadCars).
		Where("session_id = ?", sessionID).
		Order("sim_time desc").Order("id desc").
		First(&row).Error
	if err != nil {
		return core.Snapshot{}, notFound(fmt.Sprintf("session %s snapshot", sessionID), err)
	}
	return convert.SnapshotToCore(row)
}

// Snapshots returns every snapshot of a session.
func (b *Backend) Snapshots(sessionID string) ([]core.Snapshot, error) {
	if _, err := b.Session(sessionID); err != nil {
		return nil, err
	}
	var rows []model.Snapshot
	err := b.deps.DB.Preload("Cars", preloadCars).
		Where("session_id = ?", sessionID).
		Order("sim_time").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]core.Snapshot, len(rows))
	for i, r := range rows {
		s, err := convert.SnapshotToCore(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// BrakeEvents returns every written event of a session.
func (b *Backend) BrakeEvents(sessionID string) ([]core.BrakeEvent, error) {
	if _, err := b.Session(sessionID); err != nil {
		return nil, err
	}
	var rows []model.BrakeEvent
	err := b.deps.DB.Where("session_id = ?", sessionID).Order("sim_time").Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list brake events: %w", err)
	}
	out := make([]core.BrakeEvent, len(rows))
	for i, r := range rows {
		out[i] = convert.BrakeEventToCore(r)
	}
	return out, nil
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
