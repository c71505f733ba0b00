// Package watcher observes the inbox directory and turns raw filesystem
// events into settled, lock-probed ingestion candidates.
package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// EventType classifies a raw filesystem event.
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
	EventRenamed  EventType = "renamed"
)

// FileEvent is one raw observation from the OS watcher.
type FileEvent struct {
	Path       string
	OldPath    string
	Type       EventType
	OccurredAt time.Time
}

// Candidate is a settled, probe-verified file ready for ingestion.
type Candidate struct {
	Path string
	// Event is the last raw event observed for the path.
	Event FileEvent
	// DetectedAt is the first event of the burst; ReadyAt is when the
	// candidate cleared settling and probing.
	DetectedAt time.Time
	ReadyAt    time.Time
	IsFailed   bool
	Reason     string
}

// CanonicalPath is the debounce map key: absolute, trailing-separator
// stripped, upper-cased. Case folding matters because the same file can be
// reported under differing case on case-insensitive filesystems.
func CanonicalPath(path string) string {
	cleaned := filepath.Clean(strings.TrimSpace(path))
	if absolute, err := filepath.Abs(cleaned); err == nil {
		cleaned = absolute
	}
	cleaned = strings.TrimRight(cleaned, string(filepath.Separator))
	if cleaned == "" {
		cleaned = string(filepath.Separator)
	}
	return strings.ToUpper(cleaned)
}
