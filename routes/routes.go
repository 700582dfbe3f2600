package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/controllers"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/middlewares"
)

func SetupRouter(
	authC *controllers.AuthController,
	friendC *controllers.FriendController,
	alertC *controllers.AlertController,
	realtimeC *controllers.RealtimeController,
	deviceC *controllers.DeviceController,
) *gin.Engine {
	r := gin.Default()

	// Public auth routes
	auth := r.Group("/auth")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
		auth.POST("/forgot", authC.ForgotPassword)
		auth.POST("/reset", authC.ResetPassword)
	}

	// Protected user routes
	user := r.Group("/user")
	user.Use(middlewares.AuthMiddleware())
	{
		user.GET("/profile", controllers.GetProfile)
		user.POST("/notifications/toggle", controllers.ToggleNotifications)
	}

	friends := r.Group("/friends")
	friends.Use(middlewares.AuthMiddleware())
	{
		friends.GET("", friendC.List)
		friends.POST("", friendC.Add)
		friends.PUT("/:id/favorite", friendC.Favorite)
		friends.DELETE("/:id", friendC.Remove)
	}

	alerts := r.Group("/alerts")
	alerts.Use(middlewares.AuthMiddleware())
	{
		alerts.POST("", alertC.Arm)
		alerts.POST("/checkin", alertC.CheckIn)
		alerts.POST("/extend", alertC.Extend)
		alerts.GET("/active", alertC.Active)
		alerts.GET("/history", alertC.History)
	}

	ws := r.Group("/ws")
	ws.Use(middlewares.AuthMiddleware())
	{
		ws.GET("/alerts", realtimeC.AlertsWS)
	}

	if deviceC != nil {
		devices := r.Group("/devices")
		devices.Use(middlewares.AuthMiddleware())
		{
			devices.POST("/register", deviceC.Register)
		}
	}

	return r
}
