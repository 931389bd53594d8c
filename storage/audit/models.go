package audit

import (
	"time"

	"github.com/poiesic/kairix/core"
	"gorm.io/datatypes"
)

type conversationRecord struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)"`
	FilePath     string     `gorm:"type:text;not null"`
	FileName     string     `gorm:"type:text;not null"`
	Content      string     `gorm:"type:text;not null"`
	Format       string     `gorm:"type:text;not null"`
	Checksum     string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	DiscoveredAt time.Time  `gorm:"not null"`
	ProcessedAt  *time.Time `gorm:"index"`
	CreatedAt    time.Time
}

func (conversationRecord) TableName() string { return "conversations" }

func (r *conversationRecord) toCore() *core.Conversation {
	return &core.Conversation{
		ID:           r.ID,
		FilePath:     r.FilePath,
		FileName:     r.FileName,
		Content:      r.Content,
		Format:       r.Format,
		Checksum:     r.Checksum,
		DiscoveredAt: r.DiscoveredAt,
		ProcessedAt:  r.ProcessedAt,
	}
}

type fragmentRecord struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	ConversationID string `gorm:"type:varchar(36);not null;index"`
	SequenceNumber int    `gorm:"not null"`
	Content        string `gorm:"type:text;not null"`
	Role           string `gorm:"type:text"`
	TokenCount     int
	CreatedAt      time.Time

	Conversation conversationRecord `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (fragmentRecord) TableName() string { return "conversation_fragments" }

func (r *fragmentRecord) toCore() *core.Fragment {
	return &core.Fragment{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SequenceNumber: r.SequenceNumber,
		Content:        r.Content,
		Role:           r.Role,
		TokenCount:     r.TokenCount,
	}
}

type summaryRecord struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	FragmentID  string `gorm:"type:varchar(36);not null;uniqueIndex"`
	SummaryText string `gorm:"type:text;not null"`
	ModelUsed   string `gorm:"type:text;not null"`
	CreatedAt   time.Time

	Fragment fragmentRecord `gorm:"foreignKey:FragmentID"`
}

func (summaryRecord) TableName() string { return "summaries" }

type embeddingRecord struct {
	ID              string `gorm:"primaryKey;type:varchar(36)"`
	FragmentID      string `gorm:"type:varchar(36);not null;uniqueIndex"`
	EmbeddingVector []byte `gorm:"not null"`
	ModelName       string `gorm:"type:text;not null"`
	Dimensions      int    `gorm:"not null"`
	CreatedAt       time.Time

	Fragment fragmentRecord `gorm:"foreignKey:FragmentID"`
}

func (embeddingRecord) TableName() string { return "embeddings" }

type cronJobRecord struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	StartTime      time.Time  `gorm:"not null;index"`
	EndTime        *time.Time
	Status         string     `gorm:"type:text;not null;default:running"`
	FilesFound     int
	FilesProcessed int
	ErrorsCount    int
	ErrorDetails   datatypes.JSON
	CreatedAt      time.Time
}

func (cronJobRecord) TableName() string { return "cron_jobs" }

func (r *cronJobRecord) toCore() *core.CronJob {
	job := &core.CronJob{
		ID:             r.ID,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Status:         core.JobStatus(r.Status),
		FilesFound:     r.FilesFound,
		FilesProcessed: r.FilesProcessed,
		ErrorsCount:    r.ErrorsCount,
	}
	if len(r.ErrorDetails) > 0 && string(r.ErrorDetails) != "null" {
		job.ErrorDetails = []byte(r.ErrorDetails)
	}
	return job
}

type processingStatusRecord struct {
	ConversationID string    `gorm:"primaryKey;type:varchar(36)"`
	JobID          string    `gorm:"type:varchar(36);not null;index"`
	Status         string    `gorm:"type:text;not null;default:pending"`
	Stage          string    `gorm:"type:text"`
	ErrorMessage   string    `gorm:"type:text"`
	UpdatedAt      time.Time `gorm:"index"`

	Conversation conversationRecord `gorm:"foreignKey:ConversationID"`
	Job          cronJobRecord      `gorm:"foreignKey:JobID"`
}

func (processingStatusRecord) TableName() string { return "processing_status" }

func (r *processingStatusRecord) toCore() *core.ProcessingStatus {
	return &core.ProcessingStatus{
		ConversationID: r.ConversationID,
		JobID:          r.JobID,
		Status:         core.ProcessingState(r.Status),
		Stage:          r.Stage,
		ErrorMessage:   r.ErrorMessage,
		UpdatedAt:      r.UpdatedAt,
	}
}

// allModels lists the tables in dependency order for AutoMigrate.
var allModels = []any{
	&conversationRecord{},
	&fragmentRecord{},
	&summaryRecord{},
	&embeddingRecord{},
	&cronJobRecord{},
	&processingStatusRecord{},
}
