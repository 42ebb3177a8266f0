package manifest

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// ManifestFilename is the fixed manifest location under the backup directory
	ManifestFilename = "backup_manifest.json"
	// ManifestVersion identifies the manifest schema
	ManifestVersion = "1.0"
)

// FileEntry records one backed-up file and its content hash.
type FileEntry struct {
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	SHA256     string    `json:"sha256"`
	ModifiedAt time.Time `json:"modified_at"`
	GmailID    string    `json:"gmail_id,omitempty"`
	ContentType string   `json:"content_type"`
}

// BackupManifest is the content-hash ledger of a backup directory. It is
// owned by the Manager and only ever replaced whole, never patched in
// place on disk.
type BackupManifest struct {
	Version         string                 `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	BackupDirectory string                 `json:"backup_directory"`
	TotalFiles      int                    `json:"total_files"`
	TotalSizeBytes  int64                  `json:"total_size_bytes"`
	Files           []FileEntry            `json:"files"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// VerifyResult classifies every manifest entry and on-disk file after a
// re-scan of the backup directory.
type VerifyResult struct {
	TotalChecked int      `json:"total_checked"`
	Verified     int      `json:"verified"`
	Missing      []string `json:"missing"`
	Corrupted    []string `json:"corrupted"`
	Extra        []string `json:"extra"`
	Errors       []string `json:"errors"`
	IsValid      bool     `json:"is_valid"`
}

// Backed-up messages follow the naming convention
// <date>_<time>_<subject>_<hex-id>.<ext>; the trailing hex token of at
// least 12 characters is the remote message identifier.
var messageFilePattern = regexp.MustCompile(`^\d{8}_\d{6}_.+_([0-9a-fA-F]{12,})\.[^.]+$`)

// ParseGmailID extracts the remote message identifier from a filename
// following the backup naming convention. Filenames outside the
// convention yield no identifier, not an error.
func ParseGmailID(filename string) (string, bool) {
	m := messageFilePattern.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

var contentTypes = map[string]string{
	".eml":  "message/rfc822",
	".mbox": "application/mbox",
	".txt":  "text/plain",
	".html": "text/html",
	".json": "application/json",
	".pdf":  "application/pdf",
}

// ContentTypeFor derives a content-type label from the file extension.
// Unrecognized extensions map to "unknown".
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "unknown"
}
