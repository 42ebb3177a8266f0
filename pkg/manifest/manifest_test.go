package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBackupFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newBackupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeBackupFile(t, dir, "20240131_154233_invoice-january_18c2f9a4b3d1.eml", "From: billing@example.com\r\n\r\ninvoice body")
	writeBackupFile(t, dir, "20240201_093015_weekly-report_a1b2c3d4e5f60718.eml", "From: reports@example.com\r\n\r\nreport body")
	writeBackupFile(t, dir, "notes.txt", "unstructured notes")
	return dir
}

func TestParseGmailID(t *testing.T) {
	tests := []struct {
		filename string
		wantID   string
		wantOK   bool
	}{
		{"20240131_154233_invoice-january_18c2f9a4b3d1.eml", "18c2f9a4b3d1", true},
		{"20240201_093015_weekly-report_a1b2c3d4e5f60718.eml", "a1b2c3d4e5f60718", true},
		{"20240201_093015_subject_ABCDEF123456.eml", "abcdef123456", true},
		{"20240201_093015_short-id_a1b2c3.eml", "", false}, // hex token below 12 chars
		{"notes.txt", "", false},
		{"20240201_weekly-report_a1b2c3d4e5f60718.eml", "", false}, // missing time segment
		{"backup_manifest.json", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			id, ok := ParseGmailID(tt.filename)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "message/rfc822", ContentTypeFor("a.eml"))
	assert.Equal(t, "text/plain", ContentTypeFor("notes.TXT"))
	assert.Equal(t, "unknown", ContentTypeFor("archive.xyz"))
	assert.Equal(t, "unknown", ContentTypeFor("no-extension"))
}

func TestCreateManifest(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)

	m, err := mgr.Create(nil, map[string]interface{}{"account": "user@example.com"})
	require.NoError(t, err)

	assert.Equal(t, ManifestVersion, m.Version)
	assert.Equal(t, 3, m.TotalFiles)
	assert.Len(t, m.Files, 3)

	var total int64
	for _, entry := range m.Files {
		total += entry.SizeBytes
		assert.Len(t, entry.SHA256, 64)
	}
	assert.Equal(t, total, m.TotalSizeBytes)

	// Entries are ordered by path.
	assert.Equal(t, "20240131_154233_invoice-january_18c2f9a4b3d1.eml", m.Files[0].Path)
	assert.Equal(t, "18c2f9a4b3d1", m.Files[0].GmailID)
	assert.Equal(t, "message/rfc822", m.Files[0].ContentType)

	// Files outside the naming convention carry no message id.
	assert.Equal(t, "notes.txt", m.Files[2].Path)
	assert.Empty(t, m.Files[2].GmailID)
	assert.Equal(t, "text/plain", m.Files[2].ContentType)
}

func TestCreateManifestWithPatterns(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)

	m, err := mgr.Create([]string{"*.eml"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalFiles)
	for _, entry := range m.Files {
		assert.Equal(t, "message/rfc822", entry.ContentType)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)

	created, err := mgr.Create(nil, map[string]interface{}{"note": "first run"})
	require.NoError(t, err)

	fresh, err := NewManager(dir, 2)
	require.NoError(t, err)
	loaded, err := fresh.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, created.TotalFiles, loaded.TotalFiles)
	assert.Equal(t, created.TotalSizeBytes, loaded.TotalSizeBytes)
	require.Len(t, loaded.Files, len(created.Files))
	for i := range created.Files {
		assert.Equal(t, created.Files[i].Path, loaded.Files[i].Path)
		assert.Equal(t, created.Files[i].SHA256, loaded.Files[i].SHA256)
		assert.Equal(t, created.Files[i].GmailID, loaded.Files[i].GmailID)
	}
	assert.Equal(t, "first run", loaded.Metadata["note"])
}

func TestLoadMissingManifestReturnsNil(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), 1)
	require.NoError(t, err)

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestVerifyUntouchedDirectory(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	result, err := mgr.Verify()
	require.NoError(t, err)

	assert.Equal(t, 3, result.Verified)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Corrupted)
	assert.Empty(t, result.Extra)
	assert.Empty(t, result.Errors)
	assert.True(t, result.IsValid)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	// Flip a byte in one backed-up file.
	target := filepath.Join(dir, "notes.txt")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(target, data, 0644))

	result, err := mgr.Verify()
	require.NoError(t, err)

	assert.Equal(t, []string{"notes.txt"}, result.Corrupted)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Extra)
	assert.Equal(t, 2, result.Verified)
	assert.False(t, result.IsValid)
}

func TestVerifyDetectsMissing(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "notes.txt")))

	result, err := mgr.Verify()
	require.NoError(t, err)

	assert.Equal(t, []string{"notes.txt"}, result.Missing)
	assert.Empty(t, result.Corrupted)
	assert.Equal(t, 2, result.Verified)
	assert.False(t, result.IsValid)
}

func TestVerifyExtraFilesStayValid(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	writeBackupFile(t, dir, "20240301_120000_new-message_ffeeddccbbaa9988.eml", "late arrival")

	result, err := mgr.Verify()
	require.NoError(t, err)

	assert.Equal(t, []string{"20240301_120000_new-message_ffeeddccbbaa9988.eml"}, result.Extra)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Corrupted)
	assert.True(t, result.IsValid, "extra files alone never invalidate the backup")
}

func TestUpdateAppendsOnlyNewPaths(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	writeBackupFile(t, dir, "20240301_120000_new-message_ffeeddccbbaa9988.eml", "late arrival")

	// Auto-discovery picks up the new file.
	added, err := mgr.Update(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	// A second update is idempotent.
	added, err = mgr.Update(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	// An explicit list with an already-manifested path adds nothing.
	added, err = mgr.Update([]string{"notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.TotalFiles)
}

func TestUpdateNeverRemovesStaleEntries(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "notes.txt")))

	_, err = mgr.Update(nil)
	require.NoError(t, err)

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.TotalFiles, "stale entries survive update")
}

func TestFindDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeBackupFile(t, dir, "a.eml", "x")
	writeBackupFile(t, dir, "b.eml", "x")
	writeBackupFile(t, dir, "c.eml", "y")

	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	duplicates, err := mgr.FindDuplicates()
	require.NoError(t, err)

	require.Len(t, duplicates, 1)
	for _, paths := range duplicates {
		assert.Equal(t, []string{"a.eml", "b.eml"}, paths)
	}
}

func TestStatsAndExportFileList(t *testing.T) {
	dir := newBackupDir(t)
	mgr, err := NewManager(dir, 2)
	require.NoError(t, err)
	_, err = mgr.Create(nil, nil)
	require.NoError(t, err)

	stats, err := mgr.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.ContentTypes["message/rfc822"])
	assert.Equal(t, 1, stats.ContentTypes["text/plain"])
	assert.Equal(t, 0, stats.DuplicateGroups)

	var buf bytes.Buffer
	require.NoError(t, mgr.ExportFileList(&buf))
	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 3, lines)
	assert.Contains(t, buf.String(), "notes.txt")
}
