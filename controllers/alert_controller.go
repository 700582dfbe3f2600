package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/services"
)

type AlertController struct {
	Alerts *services.AlertService
}

func NewAlertController(alerts *services.AlertService) *AlertController {
	return &AlertController{Alerts: alerts}
}

type ArmInput struct {
	DurationMinutes  float64  `json:"duration_minutes" binding:"required"`
	Message          string   `json:"message"`
	ContactUsernames []string `json:"contact_usernames"`
}

// POST /alerts
func (ac *AlertController) Arm(c *gin.Context) {
	uid := c.GetString("userID")

	var input ArmInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := ac.Alerts.Arm(uid, input.DurationMinutes, input.Message, input.ContactUsernames)
	if err != nil {
		respondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"alert_id":   alert.AlertID,
		"end_time":   alert.EndTime,
		"recipients": len(alert.Recipients),
	})
}

type CheckInInput struct {
	AlertID string `json:"alert_id"` // empty = my active alert
}

// POST /alerts/checkin
func (ac *AlertController) CheckIn(c *gin.Context) {
	uid := c.GetString("userID")

	var input CheckInInput
	_ = c.ShouldBindJSON(&input) // body is optional

	alert, err := ac.Alerts.CheckIn(uid, input.AlertID)
	if err != nil {
		respondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alert_id": alert.AlertID,
		"status":   alert.Status,
	})
}

type ExtendInput struct {
	Minutes float64 `json:"minutes" binding:"required"`
}

// POST /alerts/extend
func (ac *AlertController) Extend(c *gin.Context) {
	uid := c.GetString("userID")

	var input ExtendInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := ac.Alerts.Extend(uid, input.Minutes)
	if err != nil {
		respondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alert_id": alert.AlertID,
		"end_time": alert.EndTime,
	})
}

// GET /alerts/active
func (ac *AlertController) Active(c *gin.Context) {
	uid := c.GetString("userID")

	alert, err := ac.Alerts.ActiveAlert(uid)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// GET /alerts/history
func (ac *AlertController) History(c *gin.Context) {
	uid := c.GetString("userID")

	alerts, err := ac.Alerts.History(uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	records, err := ac.Alerts.Records(uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts":  alerts,
		"records": records,
	})
}
