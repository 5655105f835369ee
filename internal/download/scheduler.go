package download

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/handiism/cloudmusic-downloader/internal/dedup"
	"github.com/handiism/cloudmusic-downloader/internal/http"
	"github.com/handiism/cloudmusic-downloader/internal/metrics"
	"github.com/handiism/cloudmusic-downloader/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Transport streams audio bytes. *http.Pool implements it.
type Transport interface {
	Fetch(ctx context.Context, url string, offset int64) (*http.Stream, error)
}

// Embedder writes metadata into a finished file. *audio.Embedder implements it.
type Embedder interface {
	Embed(ctx context.Context, path string, meta model.Metadata) error
}

// LyricsWriter saves lyrics in a sidecar next to the audio file at path and
// returns the sidecar's path. audio.WriteLRC is one.
type LyricsWriter func(path, lyrics string) (string, error)

// Deps are the collaborators of a Scheduler. Metadata, Embedder and Lyrics
// are optional; without them finished files are left untagged. Index
// defaults to a fresh dedup.Index.
type Deps struct {
	Catalog   CatalogClient
	Metadata  MetadataProvider
	Transport Transport
	Embedder  Embedder
	Lyrics    LyricsWriter
	Index     *dedup.Index
}

// Options tune a Scheduler. Zero values select the defaults.
type Options struct {
	// Concurrency is the number of worker slots (default 3).
	Concurrency int

	// MaxRetries is the number of same-tier retries after a transient
	// transport error (default 3). Negative disables retries.
	MaxRetries int

	// RetryCooldown is the first retry delay in seconds (default 1).
	RetryCooldown float64

	// RetryExponent multiplies the delay after every retry (default 2).
	RetryExponent float64

	// ProgressInterval throttles download progress events per task
	// (default 100ms). State changes are always emitted.
	ProgressInterval time.Duration

	// SubscriberBuffer is the per-subscriber event buffer (default 256).
	SubscriberBuffer int

	Logger *slog.Logger
}

// DefaultOptions returns the default scheduler options.
func DefaultOptions() Options {
	return Options{
		Concurrency:      3,
		MaxRetries:       3,
		RetryCooldown:    1,
		RetryExponent:    2,
		ProgressInterval: 100 * time.Millisecond,
		SubscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = def.MaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryCooldown < 0 {
		o.RetryCooldown = 0
	}
	if o.RetryExponent <= 0 {
		o.RetryExponent = def.RetryExponent
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = def.ProgressInterval
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = def.SubscriberBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Scheduler runs track downloads on a fixed number of worker slots and
// publishes their progress as one event stream.
//
// Scheduler provides:
//   - FIFO dispatch of enqueued tasks to at most Concurrency workers
//   - Dedup short-circuit: tracks already on disk finish without a worker
//   - Destination claims: a second task for the same file is rejected
//   - Quality fallback, same-tier retries with backoff and resume
//   - Cancellation of queued and running tasks
//   - Pausing and resuming every transfer at chunk boundaries
//   - Graceful shutdown with a deadline
//
// Example usage:
//
//	s := download.NewScheduler(download.Deps{
//	    Catalog:   client,
//	    Metadata:  client,
//	    Transport: pool,
//	    Embedder:  audio.NewEmbedder(nil, 500, logger),
//	}, download.Options{Concurrency: 3, Logger: logger})
//
//	sub := s.Subscribe()
//	go func() {
//	    for ev := range sub.Events() {
//	        fmt.Println(ev.Message())
//	    }
//	}()
//
//	tasks, err := s.Enqueue(requests...)
//	download.Wait(ctx, tasks)
//	s.Shutdown(ctx)
type Scheduler struct {
	deps       Deps
	opts       Options
	logger     *slog.Logger
	negotiator *Negotiator

	ctx    context.Context
	cancel context.CancelFunc

	slots *semaphore.Weighted
	group errgroup.Group

	mu       sync.Mutex
	queue    []*Task
	tasks    map[string]*Task
	order    []*Task
	closed   bool
	ready    chan struct{}
	emitters sync.WaitGroup

	events   chan Event
	subsMu   sync.Mutex
	subs     map[*Subscription]struct{}
	finished bool

	pauseMu sync.Mutex
	resumed chan struct{} // non-nil while paused

	downloading  atomic.Int32
	dispatchDone chan struct{}
	aggDone      chan struct{}
}

// NewScheduler creates a Scheduler and starts its dispatcher.
func NewScheduler(deps Deps, opts Options) *Scheduler {
	opts = opts.withDefaults()
	if deps.Index == nil {
		deps.Index = dedup.NewIndex(opts.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		deps:         deps,
		opts:         opts,
		logger:       opts.Logger,
		negotiator:   NewNegotiator(deps.Catalog, opts.Logger),
		ctx:          ctx,
		cancel:       cancel,
		slots:        semaphore.NewWeighted(int64(opts.Concurrency)),
		tasks:        make(map[string]*Task),
		ready:        make(chan struct{}, 1),
		events:       make(chan Event, opts.SubscriberBuffer),
		subs:         make(map[*Subscription]struct{}),
		dispatchDone: make(chan struct{}),
		aggDone:      make(chan struct{}),
	}

	go s.aggregate()
	go s.dispatch()
	return s
}

// Subscribe returns a new subscription to the event stream. Events emitted
// before the call are not replayed. After Shutdown the subscription's
// channel is already closed.
func (s *Scheduler) Subscribe() *Subscription {
	sub := newSubscription(s.opts.SubscriberBuffer, s.unsubscribe)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.finished {
		sub.finish()
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

func (s *Scheduler) unsubscribe(sub *Subscription) {
	s.subsMu.Lock()
	delete(s.subs, sub)
	s.subsMu.Unlock()
}

// Enqueue adds requests to the queue in order and returns their tasks.
//
// Requests already satisfied by a file on disk finish as done (skipped)
// without taking a worker slot. A request whose destination is claimed by
// another live task fails immediately with KindDuplicateDestination.
//
// Example:
//
//	tasks, err := s.Enqueue(
//	    model.TrackRequest{TrackID: "186016", Quality: model.QualityLossless, Dir: "/music"},
//	    model.TrackRequest{TrackID: "186001", Quality: model.QualityExHigh, Dir: "/music"},
//	)
func (s *Scheduler) Enqueue(reqs ...model.TrackRequest) ([]*Task, error) {
	if !s.beginEmit() {
		return nil, ErrShutdown
	}
	defer s.emitters.Done()

	tasks := make([]*Task, 0, len(reqs))
	queued := make([]*Task, 0, len(reqs))

	for _, req := range reqs {
		t := newTask(req)
		tasks = append(tasks, t)

		s.mu.Lock()
		s.tasks[t.id] = t
		s.order = append(s.order, t)
		s.mu.Unlock()

		ev, _ := t.transition(model.StateQueued)
		s.emit(ev)

		switch err := s.deps.Index.Claim(req); {
		case errors.Is(err, dedup.ErrExists):
			path, _ := s.deps.Index.Exists(req)
			t.markSkipped(path)
			s.logger.Debug("skipping existing file", "task", t.id, "track", req.TrackID, "path", path)
			s.finish(t, model.StateDone, KindNone, nil)
		case errors.Is(err, dedup.ErrClaimed):
			s.finish(t, model.StateFailed, KindDuplicateDestination,
				&Error{Kind: KindDuplicateDestination, TaskID: t.id, Err: err})
		case err != nil:
			s.finish(t, model.StateFailed, KindIO, &Error{Kind: KindIO, TaskID: t.id, Err: err})
		default:
			t.setClaimed(true)
			queued = append(queued, t)
		}
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.queue = append(s.queue, queued...)
	}
	s.mu.Unlock()

	if closed {
		for _, t := range queued {
			s.finish(t, model.StateCanceled, KindCanceled, &Error{Kind: KindCanceled, TaskID: t.id, Err: ErrShutdown})
		}
		return tasks, nil
	}
	s.signal()

	s.logger.Info("enqueued tracks", "count", len(reqs), "queued", len(queued))
	return tasks, nil
}

// Cancel cancels a task. A queued task is removed without side effects; a
// running task is interrupted at its next suspension point and its partial
// file is removed. Canceling a finished task does nothing.
func (s *Scheduler) Cancel(t *Task) {
	s.mu.Lock()
	if i := slices.Index(s.queue, t); i >= 0 {
		s.queue = slices.Delete(s.queue, i, i+1)
		s.emitters.Add(1)
		s.mu.Unlock()
		defer s.emitters.Done()

		s.finish(t, model.StateCanceled, KindCanceled, &Error{Kind: KindCanceled, TaskID: t.id, Err: context.Canceled})
		return
	}
	s.mu.Unlock()

	t.requestCancel()
}

// CancelAll cancels every task that has not finished yet.
func (s *Scheduler) CancelAll() {
	for _, t := range s.Tasks() {
		s.Cancel(t)
	}
}

// Pause holds every running transfer before its next chunk and keeps
// queued tasks from resolving until Resume. Canceling a paused task still
// takes effect immediately.
func (s *Scheduler) Pause() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.resumed == nil {
		s.resumed = make(chan struct{})
		s.logger.Info("downloads paused")
	}
}

// Resume releases the tasks held by Pause.
func (s *Scheduler) Resume() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.resumed != nil {
		close(s.resumed)
		s.resumed = nil
		s.logger.Info("downloads resumed")
	}
}

// Paused reports whether the scheduler is paused.
func (s *Scheduler) Paused() bool {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return s.resumed != nil
}

// waitResumed blocks while the scheduler is paused.
func (s *Scheduler) waitResumed(ctx context.Context) error {
	s.pauseMu.Lock()
	resumed := s.resumed
	s.pauseMu.Unlock()
	if resumed == nil {
		return nil
	}
	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task returns the task with the given id.
func (s *Scheduler) Task(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns every task in enqueue order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Downloading returns the number of tasks currently transferring bytes.
func (s *Scheduler) Downloading() int {
	return int(s.downloading.Load())
}

// Shutdown stops admitting tasks, cancels queued ones and waits for running
// tasks to finish. A paused scheduler is resumed first. When ctx is done
// first, the remaining tasks are canceled and Shutdown returns ctx.Err()
// once they stopped. The event stream is closed before Shutdown returns.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.aggDone
		return nil
	}
	s.closed = true
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()
	s.signal()
	s.Resume()

	s.logger.Info("shutting down scheduler", "queued", len(queued))
	for _, t := range queued {
		s.finish(t, model.StateCanceled, KindCanceled, &Error{Kind: KindCanceled, TaskID: t.id, Err: ErrShutdown})
	}

	stopped := make(chan struct{})
	go func() {
		<-s.dispatchDone
		s.group.Wait()
		close(stopped)
	}()

	var err error
	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached, canceling running tasks")
		s.cancel()
		<-stopped
		err = ctx.Err()
	}
	s.cancel()

	s.emitters.Wait()
	close(s.events)
	<-s.aggDone
	return err
}

// beginEmit registers an emitter outside the workers. It reports false once
// Shutdown started.
func (s *Scheduler) beginEmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.emitters.Add(1)
	return true
}

func (s *Scheduler) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Scheduler) dispatch() {
	defer close(s.dispatchDone)
	for {
		if err := s.slots.Acquire(s.ctx, 1); err != nil {
			return
		}
		t := s.next()
		if t == nil {
			s.slots.Release(1)
			return
		}
		s.group.Go(func() error {
			defer s.slots.Release(1)
			s.run(t)
			return nil
		})
	}
}

// next pops the oldest queued task, waiting for one. It returns nil once
// the scheduler is closed and the queue is empty.
func (s *Scheduler) next() *Task {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return t
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-s.ready:
		case <-s.ctx.Done():
			return nil
		}
	}
}

func (s *Scheduler) emit(ev Event) {
	if ev.TaskID == "" {
		return
	}
	s.events <- ev
}

// aggregate fans events in from every task and out to the subscribers.
func (s *Scheduler) aggregate() {
	defer close(s.aggDone)
	for ev := range s.events {
		s.subsMu.Lock()
		for sub := range s.subs {
			sub.push(ev)
		}
		s.subsMu.Unlock()
	}

	s.subsMu.Lock()
	s.finished = true
	for sub := range s.subs {
		sub.finish()
	}
	s.subsMu.Unlock()
}

// finish moves t to a terminal state, releases its claim and emits the
// terminal event.
func (s *Scheduler) finish(t *Task, state model.State, kind Kind, err error) {
	ev, ok := t.terminate(state, kind, err)
	if !ok {
		return
	}
	if t.takeClaim() {
		s.deps.Index.Release(t.req)
	}
	metrics.Tasks.WithLabelValues(state.String()).Inc()

	attrs := []any{"task", t.id, "track", t.req.TrackID, "state", state}
	switch {
	case kind == KindAuthentication:
		s.logger.Error("authentication failed, later tasks will fail too", append(attrs, "error", err)...)
	case state == model.StateFailed:
		s.logger.Warn("task failed", append(attrs, "kind", kind, "error", err)...)
	case kind == KindEmbedFailure:
		s.logger.Warn("task finished without metadata", append(attrs, "error", err)...)
	default:
		s.logger.Debug("task finished", attrs...)
	}

	s.emit(ev)
}
