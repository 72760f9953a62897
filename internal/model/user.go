package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered user. Username is unique and case-sensitive.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Name         *string   `json:"name" gorm:"size:120"`
	Email        *string   `json:"email" gorm:"size:120"`
	Address      *string   `json:"address" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relations
	Histories []History `json:"-" gorm:"foreignKey:UserID"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Profile is the public view of a user.
type Profile struct {
	Username string  `json:"username"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Address  *string `json:"address"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
		Address:  u.Address,
	}
}
