package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unitpay/unitpay-gateway/pkg/enums"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

// DefaultProcessingTimeoutMS bounds a single processing attempt.
const DefaultProcessingTimeoutMS = 300000

// Task is a generic asynchronous unit of work with retry and timeout bookkeeping.
type Task struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Status              enums.TaskStatus   `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	Type                enums.TaskType     `gorm:"column:type;type:varchar(64);not null"`
	Reference           *string            `gorm:"column:reference;type:varchar(64);index:idx_tasks_type_reference"`
	Data                types.JSONDocument `gorm:"column:data;type:jsonb"`
	Result              types.JSONDocument `gorm:"column:result;type:jsonb"`
	Error               *string            `gorm:"column:error;type:text"`
	StartedAt           *time.Time         `gorm:"column:started_at"`
	EndedAt             *time.Time         `gorm:"column:ended_at"`
	RetryCount          int                `gorm:"column:retry_count;not null;default:0"`
	MaxRetries          int                `gorm:"column:max_retries;not null"`
	ProcessingTimeoutMS int                `gorm:"column:processing_timeout_ms;not null;default:300000"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = enums.TaskStatusPending
	}
	if t.ProcessingTimeoutMS <= 0 {
		t.ProcessingTimeoutMS = DefaultProcessingTimeoutMS
	}
	return nil
}

// ProcessingTimeout returns the per-attempt deadline.
func (t Task) ProcessingTimeout() time.Duration {
	return time.Duration(t.ProcessingTimeoutMS) * time.Millisecond
}

// CanRetry reports whether another attempt fits inside MaxRetries.
func (t Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}
