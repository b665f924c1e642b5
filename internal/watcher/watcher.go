package watcher

import (
	"time"
)

// Operation is the kind of a file system change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpGitignoreChange marks an edited .gitignore; the scan rules changed.
	OpGitignoreChange
	// OpConfigChange marks an edited project config file.
	OpConfigChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change, relative to the watched root.
type FileEvent struct {
	Path      string // slash-separated
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Batch summarises a debounced set of events.
type Batch struct {
	Events    []FileEvent
	Gitignore bool // a .gitignore changed
	Config    bool // the project config changed
}

// NewBatch summarises events.
func NewBatch(events []FileEvent) Batch {
	b := Batch{Events: events}
	for _, e := range events {
		switch e.Operation {
		case OpGitignoreChange:
			b.Gitignore = true
		case OpConfigChange:
			b.Config = true
		}
	}
	return b
}

// Merge folds a later batch into b.
func (b Batch) Merge(later Batch) Batch {
	return Batch{
		Events:    append(append([]FileEvent(nil), b.Events...), later.Events...),
		Gitignore: b.Gitignore || later.Gitignore,
		Config:    b.Config || later.Config,
	}
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long a path must stay quiet before it is emitted.
	DebounceWindow time.Duration

	// EventBufferSize is the capacity of the batch channel.
	EventBufferSize int

	// IgnorePatterns are extra exclusions in gitignore syntax.
	IgnorePatterns []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		EventBufferSize: 100,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
