package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zkrollup-network/batch-submitter/x/batch"
)

// upsertColumns are the mutable columns refreshed on conflict. Identity
// columns (chain_id, bridge_address, data_hash, new_root, da_mode, payload,
// created_at) are fixed by the deterministic id and never rewritten.
var upsertColumns = []string{
	"status", "proof", "tx_hash", "blob_versioned_hash",
	"attempts", "last_error", "updated_at",
}

// GormStore implements Store over gorm with a sqlite or postgres backend
// selected by the DSN scheme.
type GormStore struct {
	db  *gorm.DB
	log zerolog.Logger
}

var _ Store = (*GormStore)(nil)

// Open connects to the database named by dsn and runs auto-migration.
// Recognized schemes: "postgres://" (and "postgresql://") for postgres,
// "sqlite://" or a bare file path for sqlite.
func Open(dsn string, logger zerolog.Logger) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&batch.Batch{}); err != nil {
		return nil, fmt.Errorf("migrating batches table: %w", err)
	}

	return &GormStore{
		db:  db,
		log: logger.With().Str("component", "storage").Logger(),
	}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("unsupported database scheme in dsn %q", dsn)
	default:
		// Bare path, treated as a sqlite file.
		return sqlite.Open(dsn), nil
	}
}

// Upsert inserts the batch or, when the id already exists, refreshes its
// mutable columns. ON CONFLICT keeps the write atomic per id.
func (s *GormStore) Upsert(ctx context.Context, b *batch.Batch) error {
	b.UpdatedAt = time.Now().UTC()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(b).Error
	if err != nil {
		return fmt.Errorf("upserting batch %s: %w", b.ID, err)
	}

	s.log.Debug().
		Str("batch_id", b.ID.String()).
		Str("status", b.Status.String()).
		Uint32("attempts", b.Attempts).
		Msg("batch persisted")
	return nil
}

// Get returns the batch with the given id.
func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*batch.Batch, error) {
	var b batch.Batch
	err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading batch %s: %w", id, err)
	}
	return &b, nil
}

// ListPending returns non-terminal batches, oldest update first.
func (s *GormStore) ListPending(ctx context.Context, limit int) ([]*batch.Batch, error) {
	var batches []*batch.Batch
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", []batch.Status{batch.StatusConfirmed, batch.StatusFailed}).
		Order("updated_at ASC").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending batches: %w", err)
	}
	return batches, nil
}

// CountByStatus returns the number of batches per status.
func (s *GormStore) CountByStatus(ctx context.Context) (map[batch.Status]int64, error) {
	var rows []struct {
		Status batch.Status
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&batch.Batch{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting batches: %w", err)
	}

	counts := make(map[batch.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// MarkFailed terminally fails the batch with the given reason.
func (s *GormStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res := s.db.WithContext(ctx).Model(&batch.Batch{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     batch.StatusFailed,
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("marking batch %s failed: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	s.log.Warn().
		Str("batch_id", id.String()).
		Str("reason", reason).
		Msg("batch dead-lettered")
	return nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
