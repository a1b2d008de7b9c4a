package store

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"membercheck/internal/record"
)

// ErrDatasetNotFound is returned by Remove for an unknown dataset id.
// Deleting a dataset that does not exist is a reported failure, not a silent
// no-op, and leaves the store untouched.
var ErrDatasetNotFound = errors.New("dataset not found")

// Persister defines the disk-side operations the store delegates to.
type Persister interface {
	SaveDataset(id string, ds record.Dataset) error
	DeleteDatasetFile(id string) error
}

// saveTask encapsulates a request to persist a dataset.
type saveTask struct {
	id string
	ds record.Dataset
}

// deleteTask encapsulates a request to delete a dataset file.
type deleteTask struct {
	id string
}

// DatasetStore holds all uploaded datasets for the lifetime of the process.
// A single RWMutex serializes mutations against snapshot reads; enumeration
// order is insertion order and stays stable within a run. Persistence
// happens on a background worker so uploads and deletes return immediately.
type DatasetStore struct {
	mu       sync.RWMutex
	datasets map[string]record.Dataset
	order    []string

	persister   Persister
	saveQueue   chan saveTask
	deleteQueue chan deleteTask
	quit        chan struct{}
	wg          sync.WaitGroup
}

// New creates a DatasetStore and starts its async persistence worker.
// A nil persister keeps the store purely in-memory (used in tests).
func New(persister Persister) *DatasetStore {
	s := &DatasetStore{
		datasets:    make(map[string]record.Dataset),
		persister:   persister,
		saveQueue:   make(chan saveTask, 100),
		deleteQueue: make(chan deleteTask, 10),
		quit:        make(chan struct{}),
	}
	s.startAsyncWorker()
	return s
}

// startAsyncWorker launches the background goroutine that drains both queues.
func (s *DatasetStore) startAsyncWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("Async dataset persistence worker started")
		for {
			select {
			case task, ok := <-s.saveQueue:
				if !ok {
					return
				}
				s.runSave(task)
			case task, ok := <-s.deleteQueue:
				if !ok {
					return
				}
				s.runDelete(task)
			case <-s.quit:
				slog.Info("Persistence worker draining queues before stop")
				for len(s.saveQueue) > 0 {
					s.runSave(<-s.saveQueue)
				}
				for len(s.deleteQueue) > 0 {
					s.runDelete(<-s.deleteQueue)
				}
				slog.Info("Persistence worker stopped")
				return
			}
		}
	}()
}

func (s *DatasetStore) runSave(task saveTask) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveDataset(task.id, task.ds); err != nil {
		slog.Error("Error saving dataset", "id", task.id, "error", err)
	}
}

func (s *DatasetStore) runDelete(task deleteTask) {
	if s.persister == nil {
		return
	}
	if err := s.persister.DeleteDatasetFile(task.id); err != nil {
		slog.Error("Error deleting dataset file", "id", task.id, "error", err)
	}
}

// Wait drains outstanding persistence tasks and stops the worker.
func (s *DatasetStore) Wait() {
	close(s.quit)
	s.wg.Wait()
}

// Put stores or overwrites the dataset under id and enqueues persistence.
// An overwrite keeps the id's position in the enumeration order.
func (s *DatasetStore) Put(id string, ds record.Dataset) {
	s.mu.Lock()
	if _, exists := s.datasets[id]; !exists {
		s.order = append(s.order, id)
	}
	s.datasets[id] = ds
	s.mu.Unlock()

	s.enqueueSave(id, ds)
	slog.Info("Dataset stored", "id", id, "source", ds.Source, "rows", ds.Len())
}

// Load stores a dataset without enqueueing persistence. Used when replaying
// already-persisted files at startup.
func (s *DatasetStore) Load(id string, ds record.Dataset) {
	s.mu.Lock()
	if _, exists := s.datasets[id]; !exists {
		s.order = append(s.order, id)
	}
	s.datasets[id] = ds
	s.mu.Unlock()
	slog.Debug("Dataset loaded", "id", id, "rows", ds.Len())
}

// Remove deletes the dataset under id and enqueues the file deletion.
func (s *DatasetStore) Remove(id string) error {
	s.mu.Lock()
	if _, exists := s.datasets[id]; !exists {
		s.mu.Unlock()
		slog.Warn("Attempted to remove non-existent dataset", "id", id)
		return ErrDatasetNotFound
	}
	delete(s.datasets, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	s.mu.Unlock()

	s.enqueueDelete(id)
	slog.Info("Dataset removed", "id", id)
	return nil
}

// Get returns the dataset stored under id.
func (s *DatasetStore) Get(id string) (record.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	return ds, ok
}

// List returns all dataset ids in insertion order.
func (s *DatasetStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// GetAll returns all datasets in the same order as List.
func (s *DatasetStore) GetAll() []record.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Dataset, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.datasets[id])
	}
	return out
}

// Snapshot returns ids and datasets from a single consistent view of the
// store: ids[i] is always the id of datasets[i]. Callers that need both
// must use this instead of pairing List with GetAll, which are two
// independently-locked reads.
func (s *DatasetStore) Snapshot() ([]string, []record.Dataset) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Clone(s.order)
	datasets := make([]record.Dataset, 0, len(ids))
	for _, id := range ids {
		datasets = append(datasets, s.datasets[id])
	}
	return ids, datasets
}

// Len returns the number of stored datasets.
func (s *DatasetStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// TotalRows returns the summed row count across all datasets.
func (s *DatasetStore) TotalRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, ds := range s.datasets {
		total += ds.Len()
	}
	return total
}

func (s *DatasetStore) enqueueSave(id string, ds record.Dataset) {
	select {
	case s.saveQueue <- saveTask{id: id, ds: ds}:
		slog.Debug("Save task enqueued", "id", id)
	default:
		slog.Warn("Save queue is full, dropping task", "id", id)
	}
}

func (s *DatasetStore) enqueueDelete(id string) {
	select {
	case s.deleteQueue <- deleteTask{id: id}:
		slog.Debug("Delete task enqueued", "id", id)
	default:
		slog.Warn("Delete queue is full, dropping task", "id", id)
	}
}
