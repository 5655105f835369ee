package download

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/handiism/cloudmusic-downloader/internal/auth"
	"github.com/handiism/cloudmusic-downloader/internal/http"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// Kind is the machine-readable reason carried by failed, canceled and
// partially successful tasks.
type Kind string

const (
	KindNone                 Kind = ""
	KindTransientTransport   Kind = "transient_transport"
	KindSourceUnavailable    Kind = "source_unavailable"
	KindQualityExhausted     Kind = "quality_exhausted"
	KindAuthentication       Kind = "authentication"
	KindEmbedFailure         Kind = "embed_failure"
	KindCanceled             Kind = "canceled"
	KindDuplicateDestination Kind = "duplicate_destination"
	KindIO                   Kind = "io"
)

var (
	// ErrQualityExhausted is returned when no tier yields a usable source.
	ErrQualityExhausted = errors.New("all quality tiers exhausted")

	// ErrShutdown is returned by Enqueue after Shutdown started.
	ErrShutdown = errors.New("scheduler is shut down")
)

// Error attaches a Kind and the task id to the cause of a task outcome.
type Error struct {
	Kind   Kind
	TaskID string
	Err    error
}

func (e *Error) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("task %s: %s: %v", e.TaskID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, classifying plain errors the same way the
// scheduler does.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	var status *http.StatusError
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, auth.ErrAbsent), errors.Is(err, auth.ErrExpired):
		return KindAuthentication
	case errors.Is(err, ErrQualityExhausted):
		return KindQualityExhausted
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrForbidden):
		return KindSourceUnavailable
	case errors.As(err, &status) && isUnavailableStatus(status.Code):
		return KindSourceUnavailable
	case http.IsTransient(err):
		return KindTransientTransport
	default:
		return KindIO
	}
}

// isUnavailableStatus covers the responses a CDN gives for expired or
// revoked links.
func isUnavailableStatus(code int) bool {
	switch code {
	case nethttp.StatusForbidden, nethttp.StatusNotFound, nethttp.StatusGone:
		return true
	}
	return false
}
