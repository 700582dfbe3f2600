package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	UserID      string    `gorm:"primaryKey;size:80" json:"user_id"`
	Username    string    `gorm:"uniqueIndex;size:80;not null" json:"username"`
	Email       string    `gorm:"uniqueIndex;size:120;not null" json:"email"`
	Password    string    `gorm:"size:200;not null" json:"-"`
	Placeholder bool      `gorm:"default:false" json:"placeholder"`
	ResetCode   string    `gorm:"size:64" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	return nil
}
