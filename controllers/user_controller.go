package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/services"
)

func GetProfile(c *gin.Context) {
	uid := c.GetString("userID")

	user, err := services.FindUserByID(uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  user.UserID,
		"username": user.Username,
		"email":    user.Email,
	})
}
