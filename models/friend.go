package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const FriendStatusAccepted = "accepted"

// Friend is an undirected pairing: (UserID1, UserID2) and (UserID2, UserID1)
// are the same relation, so lookups must match either orientation. At most one
// row exists per unordered pair.
type Friend struct {
	FriendID  string    `gorm:"primaryKey;size:80" json:"friend_id"`
	UserID1   string    `gorm:"column:user_id_1;size:80;index;not null" json:"user_id_1"`
	UserID2   string    `gorm:"column:user_id_2;size:80;index;not null" json:"user_id_2"`
	Status    string    `gorm:"size:20;not null;default:accepted" json:"status"`
	Favorite  bool      `gorm:"default:false" json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *Friend) BeforeCreate(tx *gorm.DB) error {
	if f.FriendID == "" {
		f.FriendID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = FriendStatusAccepted
	}
	return nil
}

// Other returns the member of the pair that is not userID.
func (f *Friend) Other(userID string) string {
	if f.UserID1 == userID {
		return f.UserID2
	}
	return f.UserID1
}
