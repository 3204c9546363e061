package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"rxdesk/m/internal/api"
	"rxdesk/m/internal/config"
	"rxdesk/m/internal/database"
	"rxdesk/m/internal/migrations"
	"rxdesk/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadDrugStock(db, cfg.StockCSV)

	handler := api.New(db, cfg.Secret)

	log.Printf("RxDesk dispensing server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
