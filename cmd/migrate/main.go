package main

import (
	"log"

	"didex/config"
	"didex/internal/db"
	"didex/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	gormDB, err := db.NewDB(cfg.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	migrator := gormDB.Migrator()
	if err := migrator.CreateIndex(&models.Deal{}, "Status"); err != nil {
		log.Fatalf("create index failed: %v", err)
	}
	if err := migrator.CreateIndex(&models.Notification{}, "AccountID"); err != nil {
		log.Fatalf("create index failed: %v", err)
	}
	if err := migrator.CreateIndex(&models.Notification{}, "ReadAt"); err != nil {
		log.Fatalf("create index failed: %v", err)
	}

	log.Println("migration completed")
}
