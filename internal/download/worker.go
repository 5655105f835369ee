package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/handiism/cloudmusic-downloader/internal/http"
	ioutils "github.com/handiism/cloudmusic-downloader/internal/io"
	"github.com/handiism/cloudmusic-downloader/internal/metrics"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

const partSuffix = ".part"

// run drives one task from resolving to a terminal state.
func (s *Scheduler) run(t *Task) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	t.bindCancel(cancel)

	if err := ctx.Err(); err != nil {
		s.finish(t, model.StateCanceled, KindCanceled, &Error{Kind: KindCanceled, TaskID: t.id, Err: err})
		return
	}

	if err := s.waitResumed(ctx); err != nil {
		s.fail(t, KindCanceled, err)
		return
	}

	req := t.req
	if err := ioutils.EnsureDir(req.Directory()); err != nil {
		s.fail(t, KindIO, err)
		return
	}

	start := req.Quality
	for {
		if ev, ok := t.transition(model.StateResolving); ok {
			s.emit(ev)
		}

		src, attempts, err := s.negotiator.Resolve(ctx, req.TrackID, start)
		t.recordAttempts(attempts)
		if err != nil {
			s.fail(t, classify(err), err)
			return
		}
		if src.Quality < req.Quality {
			metrics.QualityFallbacks.WithLabelValues(req.Quality.String(), src.Quality.String()).Inc()
		}

		path := req.Path(src.Extension())
		t.resolve(src, path)
		s.logger.Debug("resolved source", "task", t.id, "track", req.TrackID,
			"requested", req.Quality, "granted", src.Quality, "size", src.Size)

		err = s.download(ctx, t, src, path)
		if err == nil {
			break
		}

		kind := classify(err)
		if ctx.Err() != nil || (kind != KindTransientTransport && kind != KindSourceUnavailable) {
			s.fail(t, kind, err)
			return
		}

		lower, ok := src.Quality.Lower()
		if !ok {
			s.fail(t, KindQualityExhausted, fmt.Errorf("%w: %w", ErrQualityExhausted, err))
			return
		}
		s.logger.Warn("transfer failed, trying a lower quality", "task", t.id, "track", req.TrackID,
			"quality", src.Quality, "next", lower, "error", err)
		start = lower
	}

	s.embed(ctx, t)
}

// fail finishes t as failed, or as canceled when the task context was
// canceled, and removes every file the task wrote.
func (s *Scheduler) fail(t *Task, kind Kind, err error) {
	path := t.Status().Path
	if path != "" {
		ioutils.RemoveIfExists(path + partSuffix)
	}

	state := model.StateFailed
	if kind == KindCanceled || errors.Is(err, context.Canceled) {
		state, kind = model.StateCanceled, KindCanceled
		ioutils.RemoveIfExists(path)
	}
	s.finish(t, state, kind, &Error{Kind: kind, TaskID: t.id, Err: err})
}

// download transfers src into path through a part file, retrying
// transient errors on the same tier.
func (s *Scheduler) download(ctx context.Context, t *Task, src model.Source, path string) (err error) {
	ev, ok := t.transition(model.StateDownloading)
	if !ok {
		return context.Canceled
	}
	s.downloading.Add(1)
	metrics.ActiveDownloads.Inc()
	defer func() {
		s.downloading.Add(-1)
		metrics.ActiveDownloads.Dec()
	}()
	s.emit(ev)

	part := path + partSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			ioutils.RemoveIfExists(part)
		}
	}()

	var written int64
	for tries := 0; ; tries++ {
		err = s.transfer(ctx, t, f, src, &written)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !http.IsTransient(err) || tries >= s.opts.MaxRetries {
			return err
		}

		metrics.Retries.Inc()
		s.logger.Warn("retrying transfer", "task", t.id, "track", t.req.TrackID,
			"attempt", tries+1, "max", s.opts.MaxRetries, "offset", written, "error", err)
		s.waitForRetry(ctx, tries)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err = f.Close(); err != nil {
		return err
	}
	if err = ioutils.ReplaceFile(part, path); err != nil {
		return err
	}
	return nil
}

// transfer runs one Fetch, resuming at *written when the server allows it.
func (s *Scheduler) transfer(ctx context.Context, t *Task, f *os.File, src model.Source, written *int64) error {
	stream, err := s.deps.Transport.Fetch(ctx, src.URL, *written)
	if err != nil {
		return err
	}
	defer stream.Close()

	if stream.Offset != *written {
		// The server ignored the range: start the file over.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := f.Truncate(0); err != nil {
			return err
		}
		t.restart()
		*written = 0
	}

	total := stream.Total
	if total < 0 && src.Size > 0 {
		total = src.Size
	}
	t.setTotal(total)

	for {
		if err := s.waitResumed(ctx); err != nil {
			return err
		}
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		n, err := f.Write(chunk)
		*written += int64(n)
		metrics.DownloadedBytes.Add(float64(n))
		if err != nil {
			return err
		}
		if ev, ok := t.advance(*written, s.opts.ProgressInterval); ok {
			s.emit(ev)
		}
	}

	if total > 0 && *written != total {
		return fmt.Errorf("received %d of %d bytes: %w", *written, total, io.ErrUnexpectedEOF)
	}
	return nil
}

// embed runs the metadata step: tags and, when configured, a lyrics
// sidecar. Failures keep the audio file and finish the task as a partial
// success.
func (s *Scheduler) embed(ctx context.Context, t *Task) {
	ev, ok := t.transition(model.StateEmbedding)
	if !ok {
		return
	}
	s.emit(ev)
	path := ev.Path

	var (
		err     error
		sidecar string
	)
	if s.deps.Metadata != nil && (s.deps.Embedder != nil || s.deps.Lyrics != nil) {
		var meta model.Metadata
		meta, err = s.deps.Metadata.GetMetadata(ctx, t.req.TrackID)
		if err == nil {
			var errs []error
			if s.deps.Embedder != nil {
				errs = append(errs, s.deps.Embedder.Embed(ctx, path, meta))
			}
			if s.deps.Lyrics != nil && meta.Lyrics != "" {
				var lerr error
				sidecar, lerr = s.deps.Lyrics(path, meta.Lyrics)
				if lerr != nil {
					lerr = fmt.Errorf("write lyrics: %w", lerr)
				}
				errs = append(errs, lerr)
			}
			err = errors.Join(errs...)
		}
	}

	if ctx.Err() != nil {
		ioutils.RemoveIfExists(sidecar)
		s.fail(t, KindCanceled, ctx.Err())
		return
	}

	s.deps.Index.Register(path)
	if err != nil {
		s.finish(t, model.StateDone, KindEmbedFailure, &Error{Kind: KindEmbedFailure, TaskID: t.id, Err: err})
		return
	}
	s.finish(t, model.StateDone, KindNone, nil)
}

func (s *Scheduler) waitForRetry(ctx context.Context, tries int) {
	cooldown := s.opts.RetryCooldown * math.Pow(s.opts.RetryExponent, float64(tries))
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(cooldown * float64(time.Second))):
	}
}
