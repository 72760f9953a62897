package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// History is one classification request and its result, owned by a single user.
// Rows are never updated after insert.
type History struct {
	ID             uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	UserID         uuid.UUID `json:"-" gorm:"type:char(36);not null;index"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
	InputJSON      string    `json:"-" gorm:"type:text;not null"`
	PredictedClass string    `json:"predicted_class" gorm:"size:20;not null"`
	Confidence     float64   `json:"confidence" gorm:"not null"`
	ModelVersion   string    `json:"model_version,omitempty" gorm:"size:64"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

// TableName keeps the table name used by the web client's backend.
func (History) TableName() string {
	return "histories"
}

// BeforeCreate sets UUID before creating the record.
func (h *History) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
