package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultHistoryLimit is used by GetJobHistory when limit is not positive.
const DefaultHistoryLimit = 10

func (s *Store) CreateJob(ctx context.Context) (*core.CronJob, error) {
	rec := cronJobRecord{
		ID:        uuid.NewString(),
		StartTime: time.Now().UTC(),
		Status:    string(core.JobRunning),
	}
	if err := s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	}); err != nil {
		return nil, fmt.Errorf("audit: create job: %w", err)
	}
	return rec.toCore(), nil
}

func (s *Store) UpdateJob(ctx context.Context, id string, update core.JobUpdate) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var rec cronJobRecord
		if err := tx.Where("id = ?", id).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: job %s", storage.ErrNotFound, id)
			}
			return err
		}

		current := core.JobStatus(rec.Status)
		next := update.Status
		if next == "" {
			next = current
		}
		if !current.CanTransition(next) {
			return fmt.Errorf("%w: job %s %s -> %s", storage.ErrInvalidTransition, id, current, next)
		}

		changes := map[string]any{"status": string(next)}
		if update.FilesFound != nil {
			changes["files_found"] = *update.FilesFound
		}
		if update.FilesProcessed != nil {
			changes["files_processed"] = *update.FilesProcessed
		}
		if update.ErrorsCount != nil {
			changes["errors_count"] = *update.ErrorsCount
		}
		if update.ErrorDetails != nil {
			changes["error_details"] = datatypes.JSON(update.ErrorDetails)
		}
		if next.Terminal() {
			changes["end_time"] = time.Now().UTC()
		}
		return tx.Model(&cronJobRecord{}).Where("id = ?", id).Updates(changes).Error
	})
}

func (s *Store) CreateProcessingStatus(ctx context.Context, conversationID, jobID string) error {
	rec := processingStatusRecord{
		ConversationID: conversationID,
		JobID:          jobID,
		Status:         string(core.StatePending),
	}
	return s.tx(ctx, func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&rec).Error
	})
}

func (s *Store) UpdateProcessingStatus(ctx context.Context, conversationID string, status core.ProcessingState, stage, errorMessage string) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var rec processingStatusRecord
		if err := tx.Where("conversation_id = ?", conversationID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: processing status %s", storage.ErrNotFound, conversationID)
			}
			return err
		}

		current := core.ProcessingState(rec.Status)
		if !current.CanTransition(status) {
			return fmt.Errorf("%w: conversation %s %s -> %s", storage.ErrInvalidTransition, conversationID, current, status)
		}

		changes := map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}
		if stage != "" {
			changes["stage"] = stage
		}
		if errorMessage != "" {
			changes["error_message"] = errorMessage
		}
		return tx.Model(&processingStatusRecord{}).Where("conversation_id = ?", conversationID).Updates(changes).Error
	})
}

func (s *Store) GetProcessingStatus(ctx context.Context, conversationID string) (*core.ProcessingStatus, error) {
	var rec processingStatusRecord
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toCore(), nil
}

func (s *Store) GetJobHistory(ctx context.Context, limit int) ([]*core.CronJob, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var recs []cronJobRecord
	if err := s.db.WithContext(ctx).
		Order("start_time desc").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	jobs := make([]*core.CronJob, 0, len(recs))
	for i := range recs {
		jobs = append(jobs, recs[i].toCore())
	}
	return jobs, nil
}

func (s *Store) GetJobDetails(ctx context.Context, id string) (*core.JobDetails, error) {
	var job cronJobRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var statuses []processingStatusRecord
	if err := s.db.WithContext(ctx).
		Where("job_id = ?", id).
		Order("updated_at asc").
		Find(&statuses).Error; err != nil {
		return nil, err
	}

	details := &core.JobDetails{Job: job.toCore()}
	for i := range statuses {
		details.Statuses = append(details.Statuses, statuses[i].toCore())
	}
	return details, nil
}
