package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/airpulse/console/api"
	"github.com/airpulse/console/api/client"
	"github.com/airpulse/console/archive"
	"github.com/airpulse/console/config"
	"github.com/airpulse/console/display"
	"github.com/airpulse/console/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONSOLE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbPath := filepath.Join(cfg.Server.DataRoot, "console.db")
	database, err := store.NewDatabase(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Seed the configured tokens so operators can log in before the
	// upstream account system has issued any sessions.
	expiry := time.Now().Add(cfg.Auth.SessionTTL)
	for _, token := range cfg.Auth.Tokens {
		if err := database.InsertSession(token, expiry); err != nil {
			log.Fatalf("Failed to seed session: %v", err)
		}
	}

	ctx := context.Background()

	webServer := api.NewWebServer(database, cfg)
	go webServer.Start(cfg.Server.Addr)

	if cfg.Archive.Enabled {
		archiveManager, err := archive.NewManager(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize archive manager: %v", err)
		}
		go archiveManager.Run(ctx)
	}

	if cfg.Kiosk.Enabled {
		token := ""
		if len(cfg.Auth.Tokens) > 0 {
			token = cfg.Auth.Tokens[0]
		}
		consoleClient := client.New(
			cfg.Kiosk.ServerURL,
			client.Session{Token: token, Expiry: expiry},
			client.WithChunking(cfg.Upload.ChunkSize, cfg.Upload.ChunkThreshold),
		)

		cycler := display.NewCycler(display.WithFrameFunc(func(f display.Frame) {
			if f.View == display.ViewAd && f.Ad != nil {
				slog.Info("showing ad", "media", f.Ad.Path, "effect", f.Effect)
			} else {
				slog.Info("showing hvac view")
			}
		}))
		go cycler.Run(ctx)

		runner := display.NewRunner(consoleClient, cycler, cfg.Kiosk.MachineID, cfg.Kiosk.PollInterval)
		go runner.Run(ctx)
	}

	slog.Info("console started", "addr", cfg.Server.Addr, "kiosk", cfg.Kiosk.Enabled, "archive", cfg.Archive.Enabled)
	select {}
}
