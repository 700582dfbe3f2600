package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/models"
)

var DB *gorm.DB

func InitDB() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, relying on environment")
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Friend{},
		&models.Alert{},
		&models.AlertRecipient{},
		&models.Record{},
		&models.UserDevice{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	// One running countdown per owner, enforced where it cannot be raced.
	err = DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_active_per_owner
		ON alerts(user_id) WHERE status = 'active'`).Error
	if err != nil {
		log.Fatalf("index creation failed: %v", err)
	}
}
