package download

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// ProgressLevel indicates the severity/type of an event for display.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// Event is an immutable snapshot of a task, emitted on every state change
// and periodically while bytes are flowing.
//
// For one task, events arrive in state order, Bytes never decreases and
// exactly one event is terminal. Bytes and Total count every byte received,
// including bytes thrown away when a transfer had to restart, so Bytes/Total
// stays a meaningful fraction across restarts.
type Event struct {
	TaskID  string
	TrackID string
	State   model.State

	// Bytes is the number of bytes received so far.
	Bytes int64

	// Total is the number of bytes expected, or -1 when unknown.
	Total int64

	// Quality is the granted tier once resolved, otherwise the requested one.
	Quality model.Quality

	// Path is the destination file once known.
	Path string

	// Partial marks a done task whose metadata embedding failed.
	Partial bool

	// Skipped marks a done task satisfied by a file already on disk.
	Skipped bool

	// Kind and Err explain failed, canceled and partial outcomes.
	Kind Kind
	Err  error

	Time time.Time
}

// Terminal reports whether this is the task's final event.
func (e Event) Terminal() bool {
	return e.State.Terminal()
}

// Level maps the event to a display level.
func (e Event) Level() ProgressLevel {
	switch e.State {
	case model.StateDone:
		if e.Partial {
			return LevelWarning
		}
		return LevelSuccess
	case model.StateFailed:
		return LevelError
	case model.StateCanceled:
		return LevelWarning
	case model.StateDownloading:
		return LevelVerbose
	default:
		return LevelInfo
	}
}

// Message renders the event as a one-line human readable message.
func (e Event) Message() string {
	name := e.TrackID
	if e.Path != "" {
		name = filepath.Base(e.Path)
	}

	switch e.State {
	case model.StateQueued:
		return fmt.Sprintf("Queued %s", name)
	case model.StateResolving:
		return fmt.Sprintf("Resolving %s (%s)", name, e.Quality.Label())
	case model.StateDownloading:
		if e.Total > 0 {
			return fmt.Sprintf("Downloading %s: %.1f%%", name, float64(e.Bytes)/float64(e.Total)*100)
		}
		return fmt.Sprintf("Downloading %s: %d bytes", name, e.Bytes)
	case model.StateEmbedding:
		return fmt.Sprintf("Tagging %s", name)
	case model.StateDone:
		switch {
		case e.Skipped:
			return fmt.Sprintf("Skipping existing: %s", name)
		case e.Partial:
			return fmt.Sprintf("Downloaded %s [%s], tagging failed: %v", name, e.Quality.Label(), e.Err)
		default:
			return fmt.Sprintf("Downloaded %s [%s]", name, e.Quality.Label())
		}
	case model.StateFailed:
		return fmt.Sprintf("Failed %s (%s): %v", name, e.Kind, e.Err)
	case model.StateCanceled:
		return fmt.Sprintf("Canceled %s", name)
	}
	return name
}
