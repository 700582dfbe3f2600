package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/apperrors"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/services"
)

type FriendController struct {
	Dir *services.DirectoryService
}

func NewFriendController(dir *services.DirectoryService) *FriendController {
	return &FriendController{Dir: dir}
}

func (fc *FriendController) List(c *gin.Context) {
	uid := c.GetString("userID")

	friends, err := fc.Dir.ListFriends(uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (fc *FriendController) Add(c *gin.Context) {
	uid := c.GetString("userID")

	var input struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rel, err := fc.Dir.AddFriend(uid, input.Username)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"friend_id": rel.FriendID})
}

func (fc *FriendController) Favorite(c *gin.Context) {
	uid := c.GetString("userID")

	var input struct {
		Favorite bool `json:"favorite"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := fc.Dir.SetFavorite(uid, c.Param("id"), input.Favorite); err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "favorite updated"})
}

func (fc *FriendController) Remove(c *gin.Context) {
	uid := c.GetString("userID")

	if err := fc.Dir.RemoveFriend(uid, c.Param("id")); err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}

// respondAppError maps the error taxonomy onto HTTP statuses.
func respondAppError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
