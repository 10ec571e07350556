// Package watcher keeps the index synchronized with a mutating note
// corpus. It watches the corpus root with fsnotify, coalesces rapid
// event bursts through a debouncer, and emits batched events the
// service turns into queue tasks.
package watcher

import "time"

// Operation is a file system operation type.
type Operation int

const (
	// OpCreate indicates a new note was created.
	OpCreate Operation = iota
	// OpModify indicates an existing note was modified.
	OpModify
	// OpDelete indicates a note was deleted or renamed away.
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a single coalesced file system event.
type FileEvent struct {
	// Path is the absolute path of the affected note.
	Path string

	// Operation is the coalesced operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configure the corpus watcher.
type Options struct {
	// Pattern is the filename glob events must match (default "*.md").
	Pattern string

	// Debounce is the coalescing window (default 500ms).
	Debounce time.Duration

	// EventBufferSize is the batch channel capacity (default 100).
	EventBufferSize int
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Pattern == "" {
		o.Pattern = "*.md"
	}
	if o.Debounce == 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = 100
	}
	return o
}
