package persistence

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"membercheck/internal/export"
	"membercheck/internal/ingest"
	"membercheck/internal/record"

	"github.com/google/uuid"
)

// Storage keeps one file per dataset in a flat data directory. Datasets are
// persisted as CSV regardless of the upload format; re-ingesting a stored
// file yields the same records thanks to the sentinel normalization.
type Storage struct {
	dataDir string
}

// NewStorage creates the data directory if absent and returns the storage.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %q: %w", dataDir, err)
	}
	return &Storage{dataDir: dataDir}, nil
}

// Dir returns the data directory path.
func (st *Storage) Dir() string { return st.dataDir }

// StoredName derives a collision-free dataset id from the original upload
// name: a sortable timestamp, a short random suffix and the sanitized base
// name, always with a .csv extension to match the persisted format.
func (st *Storage) StoredName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		base = "upload"
	}
	stamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("%s_%s_%s.csv", stamp, uuid.NewString()[:8], base)
}

// SaveDataset writes the dataset to dataDir/id using a temporary file and an
// atomic rename, so a crash mid-write never leaves a truncated dataset.
func (st *Storage) SaveDataset(id string, ds record.Dataset) error {
	raw, err := export.CSV(record.Collection{Fields: ds.Fields, Records: ds.Records})
	if err != nil {
		return fmt.Errorf("failed to serialize dataset %q: %w", id, err)
	}

	finalPath := filepath.Join(st.dataDir, id)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, raw, 0644); err != nil {
		return fmt.Errorf("failed to write temporary dataset file %q: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary dataset file to %q: %w", finalPath, err)
	}

	slog.Debug("Dataset persisted", "id", id, "bytes", len(raw))
	return nil
}

// DeleteDatasetFile removes the dataset file. A missing file is not an
// error: the store already decided the id was valid.
func (st *Storage) DeleteDatasetFile(id string) error {
	path := filepath.Join(st.dataDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete dataset file %q: %w", path, err)
	}
	return nil
}

// LoadedDataset pairs a stored dataset with its file id.
type LoadedDataset struct {
	ID      string
	Dataset record.Dataset
}

// LoadAll re-ingests every file in the data directory, in file-name order
// (stored names sort by upload time). An unreadable or malformed file is
// skipped and reported; it never aborts the remaining loads.
func (st *Storage) LoadAll(in *ingest.Ingester) []LoadedDataset {
	entries, err := os.ReadDir(st.dataDir)
	if err != nil {
		slog.Error("Failed to read data directory", "path", st.dataDir, "error", err)
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	loaded := make([]LoadedDataset, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(st.dataDir, name))
		if err != nil {
			slog.Error("Skipping unreadable dataset file", "file", name, "error", err)
			continue
		}
		ds, err := in.Ingest(raw, name)
		if err != nil {
			slog.Error("Skipping malformed dataset file", "file", name, "error", err)
			continue
		}
		loaded = append(loaded, LoadedDataset{ID: name, Dataset: ds})
	}

	slog.Info("Datasets loaded from disk", "path", st.dataDir, "count", len(loaded))
	return loaded
}
