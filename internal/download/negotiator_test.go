package download

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/handiism/cloudmusic-downloader/internal/auth"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// fakeCatalog serves fixed sources per tier and records the tiers asked.
type fakeCatalog struct {
	mu      sync.Mutex
	calls   []model.Quality
	sources map[model.Quality]model.Source
	errs    map[model.Quality]error
}

func (c *fakeCatalog) GetSource(ctx context.Context, trackID string, q model.Quality) (model.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, q)

	if err, ok := c.errs[q]; ok {
		return model.Source{}, err
	}
	if src, ok := c.sources[q]; ok {
		return src, nil
	}
	return model.Source{}, model.ErrNotFound
}

func (c *fakeCatalog) Calls() []model.Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

func qualities(attempts []Attempt) []model.Quality {
	var qs []model.Quality
	for _, a := range attempts {
		qs = append(qs, a.Quality)
	}
	return qs
}

func TestNegotiator_Resolve(t *testing.T) {
	tests := []struct {
		name        string
		start       model.Quality
		catalog     *fakeCatalog
		wantTiers   []model.Quality
		wantGranted model.Quality
		wantKind    Kind
	}{
		{
			name:  "requested tier available",
			start: model.QualityLossless,
			catalog: &fakeCatalog{sources: map[model.Quality]model.Source{
				model.QualityLossless: {URL: "u", Quality: model.QualityLossless},
			}},
			wantTiers:   []model.Quality{model.QualityLossless},
			wantGranted: model.QualityLossless,
		},
		{
			name:  "steps down past forbidden and missing tiers",
			start: model.QualityMaster,
			catalog: &fakeCatalog{
				errs: map[model.Quality]error{model.QualityHiRes: model.ErrForbidden},
				sources: map[model.Quality]model.Source{
					model.QualityExHigh: {URL: "u", Quality: model.QualityExHigh},
				},
			},
			wantTiers:   []model.Quality{model.QualityMaster, model.QualityHiRes, model.QualityLossless, model.QualityExHigh},
			wantGranted: model.QualityExHigh,
		},
		{
			name:  "only lowest tier",
			start: model.QualitySky,
			catalog: &fakeCatalog{sources: map[model.Quality]model.Source{
				model.QualityStandard: {URL: "u", Quality: model.QualityStandard},
			}},
			wantTiers:   model.Qualities,
			wantGranted: model.QualityStandard,
		},
		{
			name:  "granted above asked is clamped",
			start: model.QualityExHigh,
			catalog: &fakeCatalog{sources: map[model.Quality]model.Source{
				model.QualityExHigh: {URL: "u", Quality: model.QualitySky},
			}},
			wantTiers:   []model.Quality{model.QualityExHigh},
			wantGranted: model.QualityExHigh,
		},
		{
			name:  "empty url is unavailable",
			start: model.QualityExHigh,
			catalog: &fakeCatalog{sources: map[model.Quality]model.Source{
				model.QualityExHigh:   {Quality: model.QualityExHigh},
				model.QualityStandard: {URL: "u", Quality: model.QualityStandard},
			}},
			wantTiers:   []model.Quality{model.QualityExHigh, model.QualityStandard},
			wantGranted: model.QualityStandard,
		},
		{
			name:      "nothing anywhere",
			start:     model.QualityLossless,
			catalog:   &fakeCatalog{},
			wantTiers: []model.Quality{model.QualityLossless, model.QualityExHigh, model.QualityStandard},
			wantKind:  KindQualityExhausted,
		},
		{
			name:  "authentication stops the walk",
			start: model.QualityLossless,
			catalog: &fakeCatalog{errs: map[model.Quality]error{
				model.QualityLossless: auth.ErrExpired,
			}},
			wantTiers: []model.Quality{model.QualityLossless},
			wantKind:  KindAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNegotiator(tt.catalog, discardLogger())
			src, attempts, err := n.Resolve(context.Background(), "1", tt.start)

			if got := qualities(attempts); !slices.Equal(got, tt.wantTiers) {
				t.Errorf("attempted %v, want %v", got, tt.wantTiers)
			}
			assertStrictlyDecreasing(t, qualities(attempts))

			if tt.wantKind != KindNone {
				if KindOf(err) != tt.wantKind {
					t.Fatalf("error kind = %q (%v), want %q", KindOf(err), err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if src.Quality != tt.wantGranted {
				t.Errorf("granted %s, want %s", src.Quality, tt.wantGranted)
			}
		})
	}
}

func TestNegotiator_ExhaustedWrapsCause(t *testing.T) {
	n := NewNegotiator(&fakeCatalog{}, discardLogger())
	_, _, err := n.Resolve(context.Background(), "1", model.QualityStandard)

	if !errors.Is(err, ErrQualityExhausted) {
		t.Errorf("error %v should wrap ErrQualityExhausted", err)
	}
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error %v should wrap the last catalog error", err)
	}
}

func TestNegotiator_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	catalog := &fakeCatalog{}
	_, attempts, err := NewNegotiator(catalog, discardLogger()).Resolve(ctx, "1", model.QualityLossless)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(attempts) != 1 || len(catalog.Calls()) != 0 {
		t.Errorf("canceled walk made %d attempts and %d catalog calls", len(attempts), len(catalog.Calls()))
	}
}

func assertStrictlyDecreasing(t *testing.T, tiers []model.Quality) {
	t.Helper()
	for i := 1; i < len(tiers); i++ {
		if tiers[i] >= tiers[i-1] {
			t.Fatalf("tiers %v are not strictly decreasing", tiers)
		}
	}
}
