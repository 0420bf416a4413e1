package datastore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/voxrec/internal/errors"
	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

const componentName = "datastore"

// DefaultRecentLimit is the number of sessions returned by Recent when the
// caller passes a non-positive limit.
const DefaultRecentLimit = 50

// Metrics receives per-operation timings.
type Metrics interface {
	RecordOperation(operation string, started time.Time, err error)
}

// Store persists session summaries.
type Store struct {
	DB      *gorm.DB
	path    string
	metrics Metrics
	log     logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens or creates the SQLite database at path and migrates the schema.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, log: GetLogger()}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryFileIO).
				Context("operation", "create_db_dir").
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger(s.log)})
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}

	s.DB = db
	s.log.Info("session history opened", logger.String("path", path))
	return s, nil
}

// Save stores one session summary. Saving the same session twice keeps the
// first record.
func (s *Store) Save(ctx context.Context, summary *recorder.SessionSummary) (err error) {
	started := time.Now()
	defer func() { s.record("save", started, err) }()

	rec := RecordFromSummary(summary)
	result := s.DB.WithContext(ctx).
		Where(SessionRecord{SessionID: rec.SessionID}).
		FirstOrCreate(&rec)
	if result.Error != nil {
		return errors.New(result.Error).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Timing("save_session", time.Since(started)).
			Context("session_id", summary.ID).
			Build()
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) (records []SessionRecord, err error) {
	started := time.Now()
	defer func() { s.record("recent", started, err) }()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	if err := s.DB.WithContext(ctx).
		Order("ended_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Timing("list_sessions", time.Since(started)).
			Build()
	}
	return records, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) record(op string, started time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(op, started, err)
	}
}
