package download

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// CatalogClient resolves a playable source for a track at a tier.
//
// Implementations return model.ErrNotFound or model.ErrForbidden when the
// tier is unavailable, and auth.ErrAbsent or auth.ErrExpired when the
// credentials are unusable. The granted tier in the returned Source may be
// lower than asked.
type CatalogClient interface {
	GetSource(ctx context.Context, trackID string, quality model.Quality) (model.Source, error)
}

// MetadataProvider returns the tags to embed for a track.
type MetadataProvider interface {
	GetMetadata(ctx context.Context, trackID string) (model.Metadata, error)
}

// Attempt is the outcome of asking the catalog for one tier. It is either
// resolved (Err is nil and Source is usable) or unavailable.
type Attempt struct {
	Quality model.Quality
	Source  model.Source
	Err     error
}

// Resolved reports whether the attempt produced a source.
func (a Attempt) Resolved() bool {
	return a.Err == nil
}

// Negotiator walks the quality tiers from a starting tier downwards until
// the catalog yields a source.
//
// Every tier is asked at most once per walk and tiers are asked in strictly
// decreasing order. Authentication failures and cancellation stop the walk
// immediately since no lower tier can fix them; every other failure,
// including a transient catalog error, moves on to the next tier.
//
// Example:
//
//	n := NewNegotiator(catalog, logger)
//	src, attempts, err := n.Resolve(ctx, "186016", model.QualityLossless)
//	// attempts: [lossless: unavailable, exhigh: resolved]
type Negotiator struct {
	catalog CatalogClient
	logger  *slog.Logger
}

// NewNegotiator creates a Negotiator over catalog.
func NewNegotiator(catalog CatalogClient, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{catalog: catalog, logger: logger}
}

// Resolve returns the first source found at or below start, together with
// every attempt made. When all tiers fail the error wraps
// ErrQualityExhausted and the last catalog error.
func (n *Negotiator) Resolve(ctx context.Context, trackID string, start model.Quality) (model.Source, []Attempt, error) {
	var attempts []Attempt

	for q, ok := start, start.Valid(); ok; q, ok = q.Lower() {
		attempt := n.try(ctx, trackID, q)
		attempts = append(attempts, attempt)

		if attempt.Resolved() {
			return attempt.Source, attempts, nil
		}

		if ctx.Err() != nil || classify(attempt.Err) == KindAuthentication {
			return model.Source{}, attempts, attempt.Err
		}
		n.logger.Debug("quality tier unavailable", "track", trackID, "quality", q, "error", attempt.Err)
	}

	var last error = fmt.Errorf("invalid starting quality %s", start)
	if len(attempts) > 0 {
		last = attempts[len(attempts)-1].Err
	}
	return model.Source{}, attempts, fmt.Errorf("%w: %w", ErrQualityExhausted, last)
}

func (n *Negotiator) try(ctx context.Context, trackID string, q model.Quality) Attempt {
	if err := ctx.Err(); err != nil {
		return Attempt{Quality: q, Err: err}
	}

	src, err := n.catalog.GetSource(ctx, trackID, q)
	if err != nil {
		return Attempt{Quality: q, Err: err}
	}
	if src.URL == "" {
		return Attempt{Quality: q, Err: model.ErrNotFound}
	}

	// A catalog never legitimately grants more than was asked.
	if !src.Quality.Valid() || src.Quality > q {
		src.Quality = q
	}
	return Attempt{Quality: q, Source: src}
}
