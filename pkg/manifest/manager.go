package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mailvault/internal/hasher"
	"mailvault/pkg/logger"
)

// Manager creates, updates and verifies the manifest of one backup
// directory. It depends on nothing but the filesystem and a hash
// function; it does not talk to the remote API.
type Manager struct {
	backupDir    string
	manifestPath string
	manifest     *BackupManifest
	hashWorkers  int
	logger       logger.Logger
}

// NewManager creates a manifest manager for the given backup directory.
func NewManager(backupDir string, hashWorkers int) (*Manager, error) {
	info, err := os.Stat(backupDir)
	if err != nil {
		return nil, fmt.Errorf("backup directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backup path is not a directory: %s", backupDir)
	}
	if hashWorkers <= 0 {
		hashWorkers = 1
	}

	return &Manager{
		backupDir:    backupDir,
		manifestPath: filepath.Join(backupDir, ManifestFilename),
		hashWorkers:  hashWorkers,
		logger:       logger.GetLogger(),
	}, nil
}

// Create scans the backup directory, hashes every matching file and
// builds a fresh manifest, replacing whatever manifest existed before.
// This is the only operation that can shrink the entry set.
func (m *Manager) Create(patterns []string, metadata map[string]interface{}) (*BackupManifest, error) {
	paths, err := m.discoverFiles(patterns)
	if err != nil {
		return nil, err
	}

	entries, err := m.hashAll(paths)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	manifest := &BackupManifest{
		Version:         ManifestVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
		BackupDirectory: m.backupDir,
		Files:           entries,
		Metadata:        metadata,
	}
	recomputeTotals(manifest)

	m.manifest = manifest
	if err := m.Save(); err != nil {
		return nil, err
	}

	m.logger.InfoWithFields("manifest created", map[string]interface{}{
		"total_files":      manifest.TotalFiles,
		"total_size_bytes": manifest.TotalSizeBytes,
	})

	return manifest, nil
}

// Save persists the current manifest atomically via temp file and rename.
func (m *Manager) Save() error {
	if m.manifest == nil {
		return fmt.Errorf("no manifest to save")
	}

	data, err := json.MarshalIndent(m.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tempPath := m.manifestPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tempPath, m.manifestPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}

	return nil
}

// Load reads the manifest from disk. Returns nil, not an error, when no
// manifest exists yet.
func (m *Manager) Load() (*BackupManifest, error) {
	data, err := os.ReadFile(m.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest BackupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	m.manifest = &manifest
	return &manifest, nil
}

// Verify re-walks the backup directory, re-hashes every file present and
// classifies each manifest entry as verified, missing or corrupted, and
// each unmanifested on-disk file as extra. Data problems never raise;
// only the structured result reports them. Hash I/O failures are
// collected per file instead of aborting the scan.
func (m *Manager) Verify() (*VerifyResult, error) {
	manifest, err := m.currentManifest()
	if err != nil {
		return nil, err
	}

	onDisk, err := m.discoverFiles(nil)
	if err != nil {
		return nil, err
	}
	onDiskSet := make(map[string]bool, len(onDisk))
	for _, p := range onDisk {
		onDiskSet[p] = true
	}

	result := &VerifyResult{
		TotalChecked: len(manifest.Files),
		Missing:      []string{},
		Corrupted:    []string{},
		Extra:        []string{},
		Errors:       []string{},
	}

	manifested := make(map[string]bool, len(manifest.Files))
	for _, entry := range manifest.Files {
		manifested[entry.Path] = true

		if !onDiskSet[entry.Path] {
			result.Missing = append(result.Missing, entry.Path)
			continue
		}

		digest, _, _, err := hasher.HashFile(filepath.Join(m.backupDir, filepath.FromSlash(entry.Path)))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Path, err))
			continue
		}

		if digest == entry.SHA256 {
			result.Verified++
		} else {
			result.Corrupted = append(result.Corrupted, entry.Path)
		}
	}

	for _, p := range onDisk {
		if !manifested[p] {
			result.Extra = append(result.Extra, p)
		}
	}
	sort.Strings(result.Extra)

	// Extra files are informational: new, not-yet-manifested files are
	// not an integrity failure.
	result.IsValid = len(result.Missing) == 0 && len(result.Corrupted) == 0

	m.logger.InfoWithFields("manifest verified", map[string]interface{}{
		"verified":  result.Verified,
		"missing":   len(result.Missing),
		"corrupted": len(result.Corrupted),
		"extra":     len(result.Extra),
		"is_valid":  result.IsValid,
	})

	return result, nil
}

// Update appends entries for files not yet in the manifest. With an
// explicit list the update is idempotent by path; with nil it
// auto-discovers unmanifested on-disk files. Stale entries are never
// removed here; only Create can shrink the set.
func (m *Manager) Update(newFiles []string) (int, error) {
	manifest, err := m.currentManifest()
	if err != nil {
		return 0, err
	}

	existing := make(map[string]bool, len(manifest.Files))
	for _, entry := range manifest.Files {
		existing[entry.Path] = true
	}

	var candidates []string
	if newFiles != nil {
		for _, p := range newFiles {
			candidates = append(candidates, filepath.ToSlash(p))
		}
	} else {
		onDisk, err := m.discoverFiles(nil)
		if err != nil {
			return 0, err
		}
		candidates = onDisk
	}

	var toAdd []string
	for _, p := range candidates {
		if !existing[p] {
			toAdd = append(toAdd, p)
			existing[p] = true
		}
	}
	if len(toAdd) == 0 {
		return 0, nil
	}

	entries, err := m.hashAll(toAdd)
	if err != nil {
		return 0, err
	}

	manifest.Files = append(manifest.Files, entries...)
	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Path < manifest.Files[j].Path
	})
	manifest.UpdatedAt = time.Now()
	recomputeTotals(manifest)

	if err := m.Save(); err != nil {
		return 0, err
	}

	m.logger.InfoWithFields("manifest updated", map[string]interface{}{
		"added":       len(entries),
		"total_files": manifest.TotalFiles,
	})

	return len(entries), nil
}

// FindDuplicates groups manifest entries by content hash and returns only
// the groups with more than one member. Read-only: nothing is deleted.
func (m *Manager) FindDuplicates() (map[string][]string, error) {
	manifest, err := m.currentManifest()
	if err != nil {
		return nil, err
	}

	byHash := make(map[string][]string)
	for _, entry := range manifest.Files {
		byHash[entry.SHA256] = append(byHash[entry.SHA256], entry.Path)
	}

	duplicates := make(map[string][]string)
	for hash, paths := range byHash {
		if len(paths) > 1 {
			sort.Strings(paths)
			duplicates[hash] = paths
		}
	}

	return duplicates, nil
}

// ManifestStats is derived read-only reporting over the manifest.
type ManifestStats struct {
	TotalFiles      int            `json:"total_files"`
	TotalSizeBytes  int64          `json:"total_size_bytes"`
	ContentTypes    map[string]int `json:"content_types"`
	DuplicateGroups int            `json:"duplicate_groups"`
}

// Stats summarizes the current manifest.
func (m *Manager) Stats() (*ManifestStats, error) {
	manifest, err := m.currentManifest()
	if err != nil {
		return nil, err
	}

	stats := &ManifestStats{
		TotalFiles:     manifest.TotalFiles,
		TotalSizeBytes: manifest.TotalSizeBytes,
		ContentTypes:   make(map[string]int),
	}
	for _, entry := range manifest.Files {
		stats.ContentTypes[entry.ContentType]++
	}

	duplicates, err := m.FindDuplicates()
	if err != nil {
		return nil, err
	}
	stats.DuplicateGroups = len(duplicates)

	return stats, nil
}

// ExportFileList writes the manifested paths, one per line.
func (m *Manager) ExportFileList(w io.Writer) error {
	manifest, err := m.currentManifest()
	if err != nil {
		return err
	}

	for _, entry := range manifest.Files {
		if _, err := fmt.Fprintln(w, entry.Path); err != nil {
			return err
		}
	}
	return nil
}

// currentManifest returns the in-memory manifest, loading it from disk on
// first use.
func (m *Manager) currentManifest() (*BackupManifest, error) {
	if m.manifest != nil {
		return m.manifest, nil
	}
	manifest, err := m.Load()
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, fmt.Errorf("no manifest found in %s", m.backupDir)
	}
	return manifest, nil
}

// discoverFiles walks the backup directory and returns manifest-relative
// paths of regular files matching any of the patterns. A nil pattern list
// matches everything. The manifest file itself and temp files are skipped.
func (m *Manager) discoverFiles(patterns []string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(m.backupDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if name == ManifestFilename || strings.HasSuffix(name, ".tmp") {
			return nil
		}

		if len(patterns) > 0 {
			matched := false
			for _, pattern := range patterns {
				ok, err := filepath.Match(pattern, name)
				if err != nil {
					return fmt.Errorf("bad file pattern %q: %w", pattern, err)
				}
				if ok {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
		}

		rel, err := filepath.Rel(m.backupDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup directory: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

// hashAll runs the relative paths through the hash pool and returns
// manifest entries ordered by path.
func (m *Manager) hashAll(relPaths []string) ([]FileEntry, error) {
	pool := hasher.NewPool(m.hashWorkers, m.logger)
	pool.Start()

	go func() {
		for _, rel := range relPaths {
			pool.Submit(hasher.HashJob{
				AbsPath: filepath.Join(m.backupDir, filepath.FromSlash(rel)),
				RelPath: rel,
			})
		}
		pool.Stop()
	}()

	// Drain the pool fully even after a failure so no worker is left
	// blocked on the result channel.
	var firstErr error
	entries := make([]FileEntry, 0, len(relPaths))
	for res := range pool.Results() {
		if res.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to hash %s: %w", res.Job.RelPath, res.Err)
			}
			continue
		}

		entry := FileEntry{
			Path:        res.Job.RelPath,
			SizeBytes:   res.SizeBytes,
			SHA256:      res.SHA256,
			ModifiedAt:  res.ModifiedAt,
			ContentType: ContentTypeFor(res.Job.RelPath),
		}
		if id, ok := ParseGmailID(res.Job.RelPath); ok {
			entry.GmailID = id
		}
		entries = append(entries, entry)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func recomputeTotals(manifest *BackupManifest) {
	manifest.TotalFiles = len(manifest.Files)
	var total int64
	for _, entry := range manifest.Files {
		total += entry.SizeBytes
	}
	manifest.TotalSizeBytes = total
}
