package download

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// Task is the handle of one enqueued track.
//
// A Task is driven by exactly one worker; callers only read it through
// Status and Done. Once a task reaches done, failed or canceled it never
// changes again.
type Task struct {
	id  string
	req model.TrackRequest

	mu        sync.Mutex
	state     model.State
	attempted []model.Quality
	granted   model.Quality
	resolved  bool
	bytes     int64 // bytes received in the current transfer
	base      int64 // bytes received by abandoned transfers
	total     int64
	path      string
	partial   bool
	skipped   bool
	kind      Kind
	err       error
	claimed   bool
	lastEmit  time.Time

	cancelRequested bool
	cancel          context.CancelFunc

	done chan struct{}
}

// Status is a read-only snapshot of a Task.
type Status struct {
	ID        string
	Request   model.TrackRequest
	State     model.State
	Attempted []model.Quality
	Granted   model.Quality
	Bytes     int64
	Total     int64
	Path      string
	Partial   bool
	Skipped   bool
	Kind      Kind
	Err       error
}

func newTask(req model.TrackRequest) *Task {
	return &Task{
		id:    uuid.NewString(),
		req:   req,
		state: model.StateQueued,
		total: -1,
		done:  make(chan struct{}),
	}
}

// ID returns the unique task id.
func (t *Task) ID() string {
	return t.id
}

// Request returns the request the task was created from.
func (t *Task) Request() model.TrackRequest {
	return t.req
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Status returns a snapshot of the task.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.total
	if total >= 0 {
		total += t.base
	}
	return Status{
		ID:        t.id,
		Request:   t.req,
		State:     t.state,
		Attempted: slices.Clone(t.attempted),
		Granted:   t.granted,
		Bytes:     t.base + t.bytes,
		Total:     total,
		Path:      t.path,
		Partial:   t.partial,
		Skipped:   t.skipped,
		Kind:      t.kind,
		Err:       t.err,
	}
}

// eventLocked builds the event for the current state.
func (t *Task) eventLocked() Event {
	total := t.total
	if total >= 0 {
		total += t.base
	}
	quality := t.req.Quality
	if t.resolved {
		quality = t.granted
	}
	t.lastEmit = time.Now()
	return Event{
		TaskID:  t.id,
		TrackID: t.req.TrackID,
		State:   t.state,
		Bytes:   t.base + t.bytes,
		Total:   total,
		Quality: quality,
		Path:    t.path,
		Partial: t.partial,
		Skipped: t.skipped,
		Kind:    t.kind,
		Err:     t.err,
		Time:    t.lastEmit,
	}
}

// transition moves the task to a non-terminal state. It reports false when
// the task is already terminal.
func (t *Task) transition(to model.State) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return Event{}, false
	}
	t.state = to
	return t.eventLocked(), true
}

// terminate moves the task to a terminal state exactly once.
func (t *Task) terminate(to model.State, kind Kind, err error) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return Event{}, false
	}
	t.state = to
	t.kind = kind
	t.err = err
	if kind == KindEmbedFailure {
		t.partial = true
	}
	ev := t.eventLocked()
	close(t.done)
	return ev, true
}

func (t *Task) recordAttempts(attempts []Attempt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range attempts {
		t.attempted = append(t.attempted, a.Quality)
	}
}

// resolve records the source a new transfer is about to start from.
// Bytes of an abandoned transfer move to base so the reported count never
// goes backwards.
func (t *Task) resolve(src model.Source, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.granted = src.Quality
	t.resolved = true
	t.path = path
	t.base += t.bytes
	t.bytes = 0
	t.total = -1
	if src.Size > 0 {
		t.total = src.Size
	}
}

// restart discards the bytes of the current transfer.
func (t *Task) restart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base += t.bytes
	t.bytes = 0
}

func (t *Task) setTotal(total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if total >= 0 {
		t.total = total
	}
}

// advance records written bytes of the current transfer and returns a
// progress event when at least interval elapsed since the last one.
func (t *Task) advance(written int64, interval time.Duration) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() || written < t.bytes {
		return Event{}, false
	}
	t.bytes = written
	if time.Since(t.lastEmit) < interval {
		return Event{}, false
	}
	return t.eventLocked(), true
}

func (t *Task) markSkipped(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped = true
	t.path = path
}

func (t *Task) setClaimed(claimed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.claimed = claimed
}

// takeClaim reports whether the task held a destination claim and clears it.
func (t *Task) takeClaim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	claimed := t.claimed
	t.claimed = false
	return claimed
}

// bindCancel attaches the cancel function of the running task. A cancel
// requested before the task started fires immediately.
func (t *Task) bindCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
	if t.cancelRequested {
		cancel()
	}
}

func (t *Task) requestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRequested = true
	if t.cancel != nil {
		t.cancel()
	}
}
