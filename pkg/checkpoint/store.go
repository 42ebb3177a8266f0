package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailvault/pkg/logger"
)

const checkpointSuffix = ".checkpoint.json"

// Store persists checkpoints as one JSON file per sync job under a single
// directory. It assumes a single writer per query; concurrent coordinators
// updating the same query are the caller's problem to prevent.
type Store struct {
	dir    string
	logger logger.Logger
}

// NewStore creates a checkpoint store rooted at dir. An empty dir selects
// the platform data directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Store{
		dir:    dir,
		logger: logger.GetLogger(),
	}, nil
}

// Create allocates a new checkpoint for the query and persists it. The
// CREATED state is transient: a job starts working immediately, so the
// record is written as IN_PROGRESS.
func (s *Store) Create(query, outputDir string, metadata map[string]interface{}) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		SyncID:          uuid.NewString(),
		Query:           query,
		OutputDirectory: outputDir,
		TotalMessages:   0,
		ProcessedCount:  0,
		Status:          StatusInProgress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Metadata:        metadata,
	}

	if err := s.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	s.logger.InfoWithFields("checkpoint created", map[string]interface{}{
		"sync_id": cp.SyncID,
		"query":   query,
	})

	return cp, nil
}

// Save persists a checkpoint atomically via temp file and rename.
func (s *Store) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	finalPath := s.path(cp.SyncID)
	tempPath := finalPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	s.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"sync_id":         cp.SyncID,
		"processed_count": cp.ProcessedCount,
		"status":          string(cp.Status),
	})

	return nil
}

// Load reads one checkpoint by sync ID. Returns nil when it does not exist.
func (s *Store) Load(syncID string) (*Checkpoint, error) {
	file, err := os.Open(s.path(syncID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return &cp, nil
}

// List returns all checkpoints in the store, newest first.
func (s *Store) List() ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	var checkpoints []*Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), checkpointSuffix) {
			continue
		}
		syncID := strings.TrimSuffix(entry.Name(), checkpointSuffix)
		cp, err := s.Load(syncID)
		if err != nil {
			// A malformed file must not hide the rest of the store.
			s.logger.WarnWithFields("skipping unreadable checkpoint", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		if cp != nil {
			checkpoints = append(checkpoints, cp)
		}
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})

	return checkpoints, nil
}

// Latest returns the most recently created checkpoint for the query, or
// nil when none exists. With resumableOnly set, only IN_PROGRESS and
// INTERRUPTED checkpoints are considered.
func (s *Store) Latest(query string, resumableOnly bool) (*Checkpoint, error) {
	checkpoints, err := s.List()
	if err != nil {
		return nil, err
	}

	for _, cp := range checkpoints {
		if cp.Query != query {
			continue
		}
		if resumableOnly && !cp.Status.Resumable() {
			continue
		}
		return cp, nil
	}

	return nil, nil
}

// UpdateProgress records how far the job has advanced and persists the
// checkpoint. Callers invoke this every N items rather than per item,
// trading up to N-1 redundantly reprocessed items after a crash for
// bounded persistence I/O.
func (s *Store) UpdateProgress(cp *Checkpoint, processed int, lastProcessedID string) error {
	cp.ProcessedCount = processed
	cp.LastProcessedID = lastProcessedID
	return s.Save(cp)
}

// MarkCompleted transitions the checkpoint to its terminal success state.
// The orchestrator's success path must call this explicitly.
func (s *Store) MarkCompleted(cp *Checkpoint) error {
	cp.Status = StatusCompleted
	if err := s.Save(cp); err != nil {
		return err
	}

	s.logger.InfoWithFields("checkpoint completed", map[string]interface{}{
		"sync_id":         cp.SyncID,
		"processed_count": cp.ProcessedCount,
	})
	return nil
}

// MarkInterrupted pauses the checkpoint so a later run can resume it. The
// orchestrator's failure path must call this explicitly; the store never
// catches exceptions on the caller's behalf.
func (s *Store) MarkInterrupted(cp *Checkpoint) error {
	cp.Status = StatusInterrupted
	if err := s.Save(cp); err != nil {
		return err
	}

	s.logger.WarnWithFields("checkpoint interrupted", map[string]interface{}{
		"sync_id":         cp.SyncID,
		"processed_count": cp.ProcessedCount,
		"total_messages":  cp.TotalMessages,
	})
	return nil
}

// Resume re-enters an interrupted or in-progress checkpoint and persists
// the IN_PROGRESS transition.
func (s *Store) Resume(cp *Checkpoint) error {
	if !cp.Status.Resumable() {
		return fmt.Errorf("checkpoint %s is not resumable (status %s)", cp.SyncID, cp.Status)
	}
	cp.Status = StatusInProgress
	return s.Save(cp)
}

// Discard removes a checkpoint regardless of status. This is the explicit
// way to give up on an interrupted job.
func (s *Store) Discard(syncID string) error {
	if err := os.Remove(s.path(syncID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	s.logger.InfoWithFields("checkpoint discarded", map[string]interface{}{
		"sync_id": syncID,
	})
	return nil
}

// CleanupOld removes COMPLETED checkpoints past the age threshold or
// beyond the keep count, newest kept first. INTERRUPTED checkpoints are
// never touched: deleting them would silently lose resumability.
func (s *Store) CleanupOld(maxAge time.Duration, keep int) (int, error) {
	checkpoints, err := s.List()
	if err != nil {
		return 0, err
	}

	var completed []*Checkpoint
	for _, cp := range checkpoints {
		if cp.Status == StatusCompleted {
			completed = append(completed, cp)
		}
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for i, cp := range completed {
		if i < keep && !cp.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.Discard(cp.SyncID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		s.logger.InfoWithFields("old checkpoints removed", map[string]interface{}{
			"removed": removed,
		})
	}

	return removed, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(syncID string) string {
	return filepath.Join(s.dir, syncID+checkpointSuffix)
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "mailvault")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "mailvault")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "mailvault")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "mailvault")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
