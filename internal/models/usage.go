package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// UsageRecord is one audited transaction, persisted for billing and
// analysis. Records are written by the audit pipeline after a request
// completes; they are never read on the request path.
type UsageRecord struct {
	BaseModel
	UserID       string  `gorm:"index;not null" json:"user_id"`
	ModelID      string  `gorm:"index;not null" json:"model_id"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`

	// RecordedAt is when the gateway observed the transaction, as
	// opposed to CreatedAt which is when the row landed in the store.
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`

	Tags     pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
