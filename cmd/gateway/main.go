package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	api "github.com/mind-engage/mindengage-testroom/internal/api/http"
	auth "github.com/mind-engage/mindengage-testroom/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testroom/internal/config"
	"github.com/mind-engage/mindengage-testroom/internal/db"
	"github.com/mind-engage/mindengage-testroom/internal/exam"
	"github.com/mind-engage/mindengage-testroom/internal/grading"
	storage "github.com/mind-engage/mindengage-testroom/internal/storage"
	syncx "github.com/mind-engage/mindengage-testroom/internal/sync"
	"github.com/mind-engage/mindengage-testroom/internal/users"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// memory keeps tests and attempts in process; users always live in SQL
	sqlDriver := db.Driver(cfg.DBDriver)
	if cfg.DBDriver == "memory" {
		sqlDriver = db.DriverSQLite
	}
	dbh, err := db.Open(ctx, sqlDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	var store exam.Store
	if cfg.DBDriver == "memory" {
		store = exam.NewInMemoryStore()
	} else {
		store = exam.NewSQLStore(dbh, sqlDriver, syncx.NewEventRepo(dbh, ""))
	}
	svc := exam.NewService(store, grading.NewDefaultGrader(), exam.WithBestEffortTimeout(cfg.BeaconTimeout))

	accounts := users.NewStore(dbh)
	if cfg.AdminPersonalID != "" && cfg.AdminPassHash != "" {
		if _, err := accounts.EnsureAdmin(ctx, cfg.AdminPersonalID, cfg.AdminPassHash, cfg.AdminEmail); err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		log.Printf("bootstrap admin %q ready", cfg.AdminPersonalID)
	}

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Auth (local JWT) ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)

	// --- Router ---
	r := api.NewRouter(api.Deps{
		Exams:    svc,
		Users:    accounts,
		Auth:     authSvc,
		Blobs:    bs,
		Ready:    ready(dbh),
		Timeout:  cfg.RequestTimeout,
		Origins:  cfg.CORSOrigins,
		Register: cfg.EnableRegistration,
	})

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

func ready(dbh *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return dbh.PingContext(ctx)
	}
}
