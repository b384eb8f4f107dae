package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/pkg/enums"
)

// Generation is one commissioned generation and its lifecycle state.
type Generation struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Type         string                 `gorm:"column:type;type:text;not null"`
	Prompt       string                 `gorm:"column:prompt;type:text;not null"`
	Status       enums.GenerationStatus `gorm:"column:status;type:text;not null"`
	OutputURL    *string                `gorm:"column:output_url"`
	ErrorMessage *string                `gorm:"column:error_message"`
	CreditsUsed  int                    `gorm:"column:credits_used;not null"`
	Metadata     GenerationMetadata     `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// VideoOptions are the caller-tunable options for video generation types.
type VideoOptions struct {
	AspectRatio enums.AspectRatio `json:"aspectRatio,omitempty"`
	Mode        string            `json:"mode,omitempty"`
}

// GenerationMetadata is the typed snapshot stored in generations.metadata.
// Options are flattened into the top-level object so rows written by
// earlier clients (which stored kieTaskId) still decode.
type GenerationMetadata struct {
	Backend      string `json:"backend,omitempty"`
	Model        string `json:"model,omitempty"`
	TaskID       string `json:"taskId,omitempty"`
	LegacyTaskID string `json:"kieTaskId,omitempty"`
	VideoOptions
}

// ExternalTaskID returns the backend task handle, preferring the current key.
func (m GenerationMetadata) ExternalTaskID() string {
	if m.TaskID != "" {
		return m.TaskID
	}
	return m.LegacyTaskID
}

// Value stores the metadata as a JSON string so it binds as jsonb under the simple protocol.
func (m GenerationMetadata) Value() (driver.Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (m *GenerationMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = GenerationMetadata{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("generation metadata: unsupported scan type %T", value)
	}
	*m = GenerationMetadata{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, m)
}
