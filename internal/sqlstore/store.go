package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forgo/progression/internal/model"
)

// MemoryPath opens a private in-memory database
const MemoryPath = "file::memory:"

// Store is a SQLite-backed implementation of every progression storage
// interface
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (creating when missing) the SQLite database at path and
// migrates the schema. An empty path falls back to progression.db.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = "progression.db"
	}
	if path != MemoryPath {
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps in-memory databases shared and serializes writers
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&stateRecord{},
		&activityRecord{},
		&changeRecord{},
		&unlockRecord{},
		&insightRecord{},
		&runRecord{},
		&snapshotRecord{},
		&analyticsRecord{},
		&metricRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	logger.Info("sqlite store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// OpenMemory opens a fresh in-memory store
func OpenMemory() (*Store, error) {
	return Open(MemoryPath, nil)
}

// Close releases the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection is usable
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DB exposes the GORM handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// translate maps GORM errors onto model sentinels
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", what, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
