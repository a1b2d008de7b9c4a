package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membercheck/internal/api"
	"membercheck/internal/auth"
	"membercheck/internal/config"
	"membercheck/internal/ingest"
	"membercheck/internal/persistence"
	"membercheck/internal/store"
)

func main() {
	// Configure logging format to include timestamps.
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg := config.LoadConfig()

	// 1. File storage: one file per dataset, directory created on first run.
	storage, err := persistence.NewStorage(cfg.DataDir)
	if err != nil {
		log.Fatalf("Fatal error initializing storage: %v", err)
	}

	// 2. Ingestion and the dataset store with its async persistence worker.
	ingester := ingest.New(cfg.RequiredFields)
	datasetStore := store.New(storage)

	// 3. Replay previously persisted datasets. Unreadable files are skipped
	// inside LoadAll; they never prevent startup.
	for _, loaded := range storage.LoadAll(ingester) {
		datasetStore.Load(loaded.ID, loaded.Dataset)
	}

	// 4. Admin gate.
	gate := auth.NewGate(cfg.AdminPassword, cfg.AdminPasswordHash, cfg.SessionTTL)

	// 5. HTTP routes with logging middleware.
	handlers := api.NewHandlers(datasetStore, ingester, gate, storage.StoredName, cfg.MaxUploadBytes)
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second, // Uploads can be slow on bad links.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 6. Periodic backups of the data directory.
	var backupManager *persistence.BackupManager
	if cfg.EnableBackups {
		backupManager = persistence.NewBackupManager(storage, cfg.BackupDir, cfg.BackupInterval, cfg.BackupRetention)
		backupManager.Start()
	}

	// 7. Start the HTTP server in a goroutine to not block main thread.
	go func() {
		log.Printf("Server listening on http://localhost%s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// 8. Graceful shutdown: drain persistence queues before exiting.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Termination signal received. Attempting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server gracefully stopped.")
	}

	if backupManager != nil {
		backupManager.Stop()
	}

	log.Println("Draining dataset persistence queues...")
	datasetStore.Wait()

	log.Println("Application exiting.")
}
