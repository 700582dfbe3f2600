package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert status values. Pending exists only inside the arming transaction;
// checked_in and expired are terminal and an alert never leaves them.
const (
	AlertStatusPending   = "pending"
	AlertStatusActive    = "active"
	AlertStatusCheckedIn = "checked_in"
	AlertStatusExpired   = "expired"
)

// AlertRecipient notification outcomes.
const (
	NotifiedPending = "pending"
	NotifiedSent    = "sent"
	NotifiedFailed  = "failed"
)

type Alert struct {
	AlertID   string    `gorm:"primaryKey;size:80" json:"alert_id"`
	UserID    string    `gorm:"size:80;index;not null" json:"user_id"`
	StartTime time.Time `gorm:"not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	Status    string    `gorm:"size:20;index;not null" json:"status"`
	Message   string    `gorm:"size:200;not null" json:"message"`

	Recipients []AlertRecipient `gorm:"foreignKey:AlertID;references:AlertID" json:"recipients,omitempty"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.AlertID == "" {
		a.AlertID = uuid.NewString()
	}
	return nil
}

// Duration is the armed countdown length, derived from the stored endpoints
// so it can never drift from them.
func (a *Alert) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Terminal reports whether the alert has reached a final state.
func (a *Alert) Terminal() bool {
	return a.Status == AlertStatusCheckedIn || a.Status == AlertStatusExpired
}

// AlertRecipient is the arm-time snapshot of one contact to notify. It keeps
// referencing the friend relation as it existed when the alert was armed, so
// removing a friend later does not rewrite history.
type AlertRecipient struct {
	AlertRecipientID  string `gorm:"primaryKey;size:80" json:"alert_recipient_id"`
	AlertID           string `gorm:"size:80;index;not null" json:"alert_id"`
	RecipientFriendID string `gorm:"size:80;not null" json:"recipient_friend_id"`
	NotifiedStatus    string `gorm:"size:20;not null;default:pending" json:"notified_status"`
}

func (r *AlertRecipient) BeforeCreate(tx *gorm.DB) error {
	if r.AlertRecipientID == "" {
		r.AlertRecipientID = uuid.NewString()
	}
	if r.NotifiedStatus == "" {
		r.NotifiedStatus = NotifiedPending
	}
	return nil
}

// Record is the append-only audit row written when an alert reaches a
// terminal state. Exactly one exists per finished alert.
type Record struct {
	RecordID  string    `gorm:"primaryKey;size:80" json:"record_id"`
	UserID    string    `gorm:"size:80;index;not null" json:"user_id"`
	AlertID   string    `gorm:"size:80;index;not null" json:"alert_id"`
	TimeStamp time.Time `gorm:"not null" json:"time_stamp"`
}

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.RecordID == "" {
		r.RecordID = uuid.NewString()
	}
	return nil
}
