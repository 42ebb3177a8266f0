package backup

import (
	"context"
	"time"
)

// Message is a single mail message fetched from the remote account.
type Message struct {
	ID       string
	Subject  string
	Received time.Time
	Raw      []byte
}

// MessagePage is one page of a mailbox enumeration.
type MessagePage struct {
	IDs           []string
	NextPageToken string
	// ResultSizeEstimate is the server's estimate of the total match count.
	// It is advisory and only used for progress reporting.
	ResultSizeEstimate int
}

// Fetcher enumerates and retrieves messages from the remote mailbox.
type Fetcher interface {
	// ListMessageIDs returns one page of message ids matching query,
	// starting at pageToken ("" for the first page).
	ListMessageIDs(ctx context.Context, query, pageToken string) (*MessagePage, error)

	// FetchMessage retrieves the full raw content of a single message.
	FetchMessage(ctx context.Context, id string) (*Message, error)
}

// MessageWriter persists fetched messages and answers duplicate checks.
type MessageWriter interface {
	IsSaved(gmailID string) bool
	SaveMessage(msg *Message) error
}
