package backup

import (
	"bytes"

	"mailvault/pkg/storage"
)

// storageWriter adapts a storage.Manager to the MessageWriter interface,
// building the canonical filename from message attributes.
type storageWriter struct {
	manager *storage.Manager
}

// NewStorageWriter wraps a storage manager as a MessageWriter.
func NewStorageWriter(m *storage.Manager) MessageWriter {
	return &storageWriter{manager: m}
}

func (w *storageWriter) IsSaved(gmailID string) bool {
	return w.manager.IsSaved(gmailID)
}

func (w *storageWriter) SaveMessage(msg *Message) error {
	name := storage.MessageFilename(msg.Received, msg.Subject, msg.ID)
	return w.manager.SaveMessage(bytes.NewReader(msg.Raw), name)
}
