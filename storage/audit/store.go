// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the relational database.
type Config struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string
	// DSN is a file path for SQLite or a connection string for Postgres.
	DSN string
	// SlowThreshold logs queries slower than this. Zero uses one second.
	SlowThreshold time.Duration
}

// Store implements storage.AuditStore with gorm.
type Store struct {
	db *gorm.DB
}

var _ storage.AuditStore = (*Store)(nil)

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*Store, error) {
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = time.Second
	}
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.DSN == "" {
			return nil, errors.New("audit: sqlite path is required")
		}
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("audit: create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if cfg.Driver != DriverPostgres {
		// SQLite allows one writer; serialize through a single connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an open gorm connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// tx runs fn in a transaction bound to ctx.
func (s *Store) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) StoreConversation(ctx context.Context, filePath, content, format string) (string, bool, error) {
	checksum := core.Checksum(content)
	var id string

	err := s.tx(ctx, func(tx *gorm.DB) error {
		var existing conversationRecord
		err := tx.Where("checksum = ?", checksum).Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		rec := conversationRecord{
			ID:           uuid.NewString(),
			FilePath:     filePath,
			FileName:     filepath.Base(filePath),
			Content:      content,
			Format:       format,
			Checksum:     checksum,
			DiscoveredAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		id = rec.ID
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent writer stored the same content first.
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("audit: store conversation: %w", err)
	}
	return id, id != "", nil
}

func (s *Store) GetConversationByChecksum(ctx context.Context, checksum string) (*core.Conversation, error) {
	var rec conversationRecord
	err := s.db.WithContext(ctx).Where("checksum = ?", checksum).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toCore(), nil
}

func (s *Store) GetUnprocessedConversations(ctx context.Context) ([]*core.Conversation, error) {
	var recs []conversationRecord
	if err := s.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("discovered_at asc").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*core.Conversation, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toCore())
	}
	return out, nil
}

func (s *Store) MarkConversationProcessed(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&conversationRecord{}).Where("id = ?", id).Update("processed_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
		}
		return nil
	})
}

func (s *Store) StoreFragment(ctx context.Context, fragment *core.Fragment) (string, error) {
	rec := fragmentRecord{
		ID:             uuid.NewString(),
		ConversationID: fragment.ConversationID,
		SequenceNumber: fragment.SequenceNumber,
		Content:        fragment.Content,
		Role:           fragment.Role,
		TokenCount:     fragment.TokenCount,
	}
	err := s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&rec).Error
	})
	if err != nil {
		return "", fmt.Errorf("audit: store fragment: %w", translate(err))
	}
	fragment.ID = rec.ID
	return rec.ID, nil
}

func (s *Store) GetFragments(ctx context.Context, conversationID string) ([]*core.Fragment, error) {
	var recs []fragmentRecord
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sequence_number asc").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*core.Fragment, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toCore())
	}
	return out, nil
}

func (s *Store) StoreSummary(ctx context.Context, fragmentID, summaryText, model string) (string, error) {
	rec := summaryRecord{
		ID:          uuid.NewString(),
		FragmentID:  fragmentID,
		SummaryText: summaryText,
		ModelUsed:   model,
	}
	err := s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&rec).Error
	})
	if err != nil {
		return "", fmt.Errorf("audit: store summary: %w", translate(err))
	}
	return rec.ID, nil
}

func (s *Store) GetFragmentSummary(ctx context.Context, fragmentID string) (*core.FragmentSummary, error) {
	var rec summaryRecord
	err := s.db.WithContext(ctx).Where("fragment_id = ?", fragmentID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &core.FragmentSummary{
		ID:          rec.ID,
		FragmentID:  rec.FragmentID,
		SummaryText: rec.SummaryText,
		ModelUsed:   rec.ModelUsed,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func (s *Store) StoreEmbedding(ctx context.Context, fragmentID string, vector []float32, model string) (string, error) {
	rec := embeddingRecord{
		ID:              uuid.NewString(),
		FragmentID:      fragmentID,
		EmbeddingVector: core.EncodeVector(vector),
		ModelName:       model,
		Dimensions:      len(vector),
	}
	err := s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&rec).Error
	})
	if err != nil {
		return "", fmt.Errorf("audit: store embedding: %w", translate(err))
	}
	return rec.ID, nil
}

func (s *Store) GetFragmentEmbedding(ctx context.Context, fragmentID string) (*core.FragmentEmbedding, error) {
	var rec embeddingRecord
	err := s.db.WithContext(ctx).Where("fragment_id = ?", fragmentID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	vector, err := core.DecodeVector(rec.EmbeddingVector, rec.Dimensions)
	if err != nil {
		return nil, err
	}
	return &core.FragmentEmbedding{
		ID:         rec.ID,
		FragmentID: rec.FragmentID,
		Vector:     vector,
		ModelName:  rec.ModelName,
		Dimensions: rec.Dimensions,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// translate maps driver-level duplicate errors to storage.ErrDuplicateKey.
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", storage.ErrDuplicateKey, err)
	}
	return err
}
