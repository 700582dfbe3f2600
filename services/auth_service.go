package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/apperrors"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/config"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/models"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/utils"
)

// ResetMailer sends password-reset codes. Implemented by utils.SESMailer.
type ResetMailer interface {
	SendResetEmail(to, code string) error
}

func RegisterUser(username, email, password string) error {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	// A placeholder created by a friend's contact list can be claimed by the
	// real person registering with that username.
	var existing models.User
	err = config.DB.Where("username = ?", username).First(&existing).Error
	if err == nil {
		if !existing.Placeholder {
			return apperrors.Conflict("username already taken")
		}
		existing.Email = email
		existing.Password = hashed
		existing.Placeholder = false
		return config.DB.Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	user := models.User{
		Username: username,
		Email:    email,
		Password: hashed,
	}
	return config.DB.Create(&user).Error
}

func AuthenticateUser(username, password string) (string, error) {
	var user models.User
	result := config.DB.Where("username = ? AND placeholder = ?", username, false).First(&user)
	if result.Error != nil {
		return "", errors.New("user not found")
	}

	if !utils.CheckPasswordHash(password, user.Password) {
		return "", errors.New("incorrect password")
	}

	return utils.GenerateJWT(user.UserID, user.Username)
}

func StartPasswordReset(email string, mailer ResetMailer) error {
	var user models.User
	if err := config.DB.Where("email = ? AND placeholder = ?", email, false).First(&user).Error; err != nil {
		// Do not reveal whether the address exists.
		return nil
	}

	code, err := utils.GenerateResetCode()
	if err != nil {
		return err
	}
	user.ResetCode = code
	if err := config.DB.Save(&user).Error; err != nil {
		return err
	}
	return mailer.SendResetEmail(user.Email, code)
}

func ResetPassword(email, code, newPassword string) error {
	var user models.User
	if err := config.DB.Where("email = ? AND reset_code = ? AND reset_code <> ''", email, code).First(&user).Error; err != nil {
		return apperrors.Forbidden("invalid reset code")
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.Password = hashed
	user.ResetCode = ""
	return config.DB.Save(&user).Error
}

func FindUserByID(userID string) (*models.User, error) {
	var user models.User
	if err := config.DB.First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, apperrors.NotFound("user", userID)
	}
	return &user, nil
}
