package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"mailvault/pkg/manifest"
)

const messageExtension = ".eml"

// Manager handles message file storage and duplicate detection
type Manager struct {
	outputDir     string
	savedMessages map[string]bool
	mu            sync.RWMutex
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir:     outputDir,
		savedMessages: make(map[string]bool),
	}

	// Scan existing files for duplicate detection
	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles scans the output directory for already saved messages
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := manifest.ParseGmailID(entry.Name()); ok {
			m.savedMessages[id] = true
		}
	}

	return nil
}

// IsSaved checks if a message with the given id has already been saved
func (m *Manager) IsSaved(gmailID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.savedMessages[strings.ToLower(gmailID)]
}

// SaveMessage saves raw message content under the given filename. The write
// goes through a temp file and rename so readers never see partial content.
func (m *Manager) SaveMessage(r io.Reader, filename string) error {
	path := filepath.Join(m.outputDir, filename)

	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save message data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	if id, ok := manifest.ParseGmailID(filename); ok {
		m.mu.Lock()
		m.savedMessages[id] = true
		m.mu.Unlock()
	}

	return nil
}

var subjectSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeSubject turns a message subject into a filename-safe slug
func sanitizeSubject(subject string) string {
	slug := strings.ToLower(subject)
	slug = subjectSanitizer.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "no-subject"
	}
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	return slug
}

// MessageFilename builds the canonical on-disk name for a message
func MessageFilename(received time.Time, subject, gmailID string) string {
	return fmt.Sprintf("%s_%s_%s%s",
		received.UTC().Format("20060102_150405"),
		sanitizeSubject(subject),
		strings.ToLower(gmailID),
		messageExtension,
	)
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// SavedCount returns the number of saved messages
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.savedMessages)
}
