package main

import (
	"log"
	"os"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/config"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/controllers"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/models"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/routes"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/services"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/utils"
)

func main() {
	config.InitDB()

	mailer, err := utils.NewSESMailer()
	if err != nil {
		log.Fatalf("mailer init failed: %v", err)
	}

	rt := services.NewRealtimeHub()
	dir := services.NewDirectoryService(config.DB, os.Getenv("ALLOW_PLACEHOLDER_FRIENDS") == "true")
	notifier := services.NewNotifier(mailer)

	var push *services.PushService
	var deviceC *controllers.DeviceController
	if os.Getenv("SNS_FCM_ARN") != "" {
		push, err = services.NewPushService(config.DB)
		if err != nil {
			log.Fatalf("push init failed: %v", err)
		}
		deviceC = controllers.NewDeviceController(push)
	}

	alerts := services.NewAlertService(config.DB, dir, notifier, rt, push)

	// Timers live only in this process. Alerts left active by a previous run
	// have no countdown anymore; flag them rather than silently rescheduling.
	var orphaned int64
	config.DB.Model(&models.Alert{}).Where("status = ?", models.AlertStatusActive).Count(&orphaned)
	if orphaned > 0 {
		log.Printf("warning: %d active alert(s) from a previous run have no timer; owners can still check in", orphaned)
	}

	r := routes.SetupRouter(
		controllers.NewAuthController(mailer),
		controllers.NewFriendController(dir),
		controllers.NewAlertController(alerts),
		controllers.NewRealtimeController(rt),
		deviceC,
	)
	r.Run(":8080")
}
