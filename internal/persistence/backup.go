package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// BackupManager periodically copies the data directory into timestamped
// backup directories and prunes backups older than the retention window.
type BackupManager struct {
	storage       *Storage
	backupDir     string
	interval      time.Duration
	retention     time.Duration
	backupLock    sync.Mutex
	backupRunning bool
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewBackupManager creates a backup manager for the given storage.
func NewBackupManager(storage *Storage, backupDir string, interval, retention time.Duration) *BackupManager {
	return &BackupManager{
		storage:   storage,
		backupDir: backupDir,
		interval:  interval,
		retention: retention,
		stopChan:  make(chan struct{}),
	}
}

// Start initiates the periodic backup service.
func (bm *BackupManager) Start() {
	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		slog.Error("Failed to create backup directory", "path", bm.backupDir, "error", err)
		return
	}
	slog.Info("Backup manager starting...", "interval", bm.interval.String(), "retention", bm.retention.String())
	bm.wg.Add(1)
	go bm.runPeriodicBackups()
}

// Stop terminates the backup service and waits for it to finish.
func (bm *BackupManager) Stop() {
	close(bm.stopChan)
	bm.wg.Wait()
}

func (bm *BackupManager) runPeriodicBackups() {
	defer bm.wg.Done()

	slog.Info("Performing initial backup on startup...")
	if err := bm.PerformBackup(); err != nil {
		slog.Error("Error in initial backup", "error", err)
	}

	ticker := time.NewTicker(bm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("Performing periodic backup...")
			if err := bm.PerformBackup(); err != nil {
				slog.Error("Error in periodic backup", "error", err)
			}
		case <-bm.stopChan:
			slog.Info("Backup manager received stop signal. Stopping.")
			return
		}
	}
}

// PerformBackup copies every dataset file into a new timestamped directory.
func (bm *BackupManager) PerformBackup() error {
	bm.backupLock.Lock()
	defer bm.backupLock.Unlock()

	if bm.backupRunning {
		slog.Warn("Backup skipped: another backup is already in progress.")
		return fmt.Errorf("backup already in progress")
	}
	bm.backupRunning = true
	defer func() { bm.backupRunning = false }()

	stamp := time.Now().Format("2006-01-02_15-04-05")
	backupPath := filepath.Join(bm.backupDir, stamp)

	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return fmt.Errorf("error creating backup directory: %w", err)
	}

	entries, err := os.ReadDir(bm.storage.Dir())
	if err != nil {
		os.RemoveAll(backupPath)
		return fmt.Errorf("error reading data directory: %w", err)
	}

	copied := 0
	for _, e := range entries {
		// In-flight atomic writes are skipped the same way LoadAll skips
		// them; a restore must never resurrect a partial file.
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		src := filepath.Join(bm.storage.Dir(), e.Name())
		dst := filepath.Join(backupPath, e.Name())
		if err := copyFile(src, dst); err != nil {
			os.RemoveAll(backupPath)
			return fmt.Errorf("error copying %q: %w", e.Name(), err)
		}
		copied++
	}

	go bm.cleanOldBackups()

	slog.Info("Backup completed successfully", "path", backupPath, "files", copied)
	return nil
}

// cleanOldBackups removes backup directories older than the retention window.
func (bm *BackupManager) cleanOldBackups() {
	entries, err := os.ReadDir(bm.backupDir)
	if err != nil {
		slog.Error("Failed to read backup directory for cleanup", "error", err)
		return
	}

	cutoff := time.Now().Add(-bm.retention)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		stamp, err := time.ParseInLocation("2006-01-02_15-04-05", e.Name(), time.Local)
		if err != nil {
			continue
		}
		if stamp.Before(cutoff) {
			path := filepath.Join(bm.backupDir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				slog.Error("Failed to remove expired backup", "path", path, "error", err)
			} else {
				slog.Info("Expired backup removed", "path", path)
			}
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
