package services

import (
	"errors"
	"log"

	"gorm.io/gorm"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/apperrors"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/models"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/utils"
)

// DirectoryService owns friend relations and recipient resolution. Relations
// are undirected, so every lookup matches both orientations of the pair.
type DirectoryService struct {
	db *gorm.DB

	// allowPlaceholders enables the AddFriend branch that creates a minimal
	// account for an unknown username so the relation can be recorded
	// immediately. Off by default; placeholders get a random credential
	// that nobody can log in with.
	allowPlaceholders bool
}

func NewDirectoryService(db *gorm.DB, allowPlaceholders bool) *DirectoryService {
	return &DirectoryService{db: db, allowPlaceholders: allowPlaceholders}
}

// ResolvedRecipient is one arm-time notification target: the friend relation
// it snapshots plus the contact's delivery address.
type ResolvedRecipient struct {
	FriendID string
	UserID   string
	Username string
	Email    string
}

// Resolve maps contact usernames to confirmed friends of ownerID and their
// delivery addresses. Usernames with no account, or no accepted relation with
// the owner, are skipped silently: arming proceeds with whatever subset
// resolves rather than failing the whole request.
func (d *DirectoryService) Resolve(ownerID string, usernames []string) ([]ResolvedRecipient, error) {
	out := make([]ResolvedRecipient, 0, len(usernames))
	seen := make(map[string]bool, len(usernames))

	for _, name := range usernames {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var contact models.User
		if err := d.db.Where("username = ?", name).First(&contact).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}

		rel, err := d.relationBetween(ownerID, contact.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}

		out = append(out, ResolvedRecipient{
			FriendID: rel.FriendID,
			UserID:   contact.UserID,
			Username: contact.Username,
			Email:    contact.Email,
		})
	}
	return out, nil
}

// AddFriend records an accepted relation between the owner and the named
// user. If the username is unknown and placeholders are enabled, a minimal
// account is created on the spot so the relation can exist right away.
func (d *DirectoryService) AddFriend(ownerID, username string) (*models.Friend, error) {
	if username == "" {
		return nil, apperrors.ValidationFailed("username", "username is required")
	}

	var contact models.User
	err := d.db.Where("username = ?", username).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if !d.allowPlaceholders {
			return nil, apperrors.NotFound("user", username)
		}
		contact, err = d.createPlaceholder(username)
	}
	if err != nil {
		return nil, err
	}

	if contact.UserID == ownerID {
		return nil, apperrors.ValidationFailed("username", "cannot add yourself as a friend")
	}

	if _, err := d.relationBetween(ownerID, contact.UserID); err == nil {
		return nil, apperrors.Conflict("already friends with " + username)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rel := models.Friend{UserID1: ownerID, UserID2: contact.UserID}
	if err := d.db.Create(&rel).Error; err != nil {
		return nil, err
	}
	return &rel, nil
}

// createPlaceholder makes an account that exists only to anchor a friend
// relation. The credential is crypto-random and discarded, so the account
// cannot be authenticated into until its owner claims it through a real
// registration flow.
func (d *DirectoryService) createPlaceholder(username string) (models.User, error) {
	secret, err := utils.GenerateSecureToken(32)
	if err != nil {
		return models.User{}, err
	}
	hash, err := utils.HashPassword(secret)
	if err != nil {
		return models.User{}, err
	}

	u := models.User{
		Username:    username,
		Email:       username + "@placeholder.invalid",
		Password:    hash,
		Placeholder: true,
	}
	if err := d.db.Create(&u).Error; err != nil {
		return models.User{}, err
	}
	log.Printf("directory: created placeholder account for %q", username)
	return u, nil
}

// ListFriends returns the owner's relations with the other party's identity
// attached.
func (d *DirectoryService) ListFriends(ownerID string) ([]map[string]any, error) {
	var rels []models.Friend
	err := d.db.
		Where("user_id_1 = ? OR user_id_2 = ?", ownerID, ownerID).
		Order("created_at").
		Find(&rels).Error
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rels))
	for _, rel := range rels {
		var other models.User
		if err := d.db.First(&other, "user_id = ?", rel.Other(ownerID)).Error; err != nil {
			continue
		}
		out = append(out, map[string]any{
			"friend_id":   rel.FriendID,
			"username":    other.Username,
			"email":       other.Email,
			"favorite":    rel.Favorite,
			"placeholder": other.Placeholder,
		})
	}
	return out, nil
}

// SetFavorite toggles the favorite flag on one of the owner's relations.
func (d *DirectoryService) SetFavorite(ownerID, friendID string, favorite bool) error {
	rel, err := d.ownedRelation(ownerID, friendID)
	if err != nil {
		return err
	}
	return d.db.Model(rel).Update("favorite", favorite).Error
}

// RemoveFriend deletes one of the owner's relations. Alert history is
// untouched: recipient rows snapshot the relation id at arm time.
func (d *DirectoryService) RemoveFriend(ownerID, friendID string) error {
	rel, err := d.ownedRelation(ownerID, friendID)
	if err != nil {
		return err
	}
	return d.db.Delete(rel).Error
}

func (d *DirectoryService) ownedRelation(ownerID, friendID string) (*models.Friend, error) {
	var rel models.Friend
	err := d.db.
		Where("friend_id = ? AND (user_id_1 = ? OR user_id_2 = ?)", friendID, ownerID, ownerID).
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("friend", friendID)
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (d *DirectoryService) relationBetween(a, b string) (*models.Friend, error) {
	var rel models.Friend
	err := d.db.
		Where("status = ?", models.FriendStatusAccepted).
		Where("(user_id_1 = ? AND user_id_2 = ?) OR (user_id_1 = ? AND user_id_2 = ?)", a, b, b, a).
		First(&rel).Error
	if err != nil {
		return nil, err
	}
	return &rel, nil
}
