package model

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestQuality_Lower(t *testing.T) {
	var walked []Quality
	q := QualitySky
	for {
		walked = append(walked, q)
		next, ok := q.Lower()
		if !ok {
			break
		}
		if next >= q {
			t.Fatalf("Lower(%s) = %s, want a lower tier", q, next)
		}
		q = next
	}

	if len(walked) != len(Qualities) {
		t.Fatalf("walked %d tiers, want %d", len(walked), len(Qualities))
	}
	for i := range Qualities {
		if walked[i] != Qualities[i] {
			t.Errorf("walked[%d] = %s, want %s", i, walked[i], Qualities[i])
		}
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		input   string
		want    Quality
		wantErr bool
	}{
		{"lossless", QualityLossless, false},
		{"EXHIGH", QualityExHigh, false},
		{"jymaster", QualityMaster, false},
		{"无损", QualityLossless, false},
		{"标准", QualityStandard, false},
		{" sky ", QualitySky, false},
		{"ultra", QualityStandard, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseQuality(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseQuality(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuality(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseQuality(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestQuality_TextRoundTrip(t *testing.T) {
	var q Quality
	if err := q.UnmarshalText([]byte("jyeffect")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if q != QualityHiRes {
		t.Errorf("got %s, want %s", q, QualityHiRes)
	}
	text, _ := q.MarshalText()
	if string(text) != "jyeffect" {
		t.Errorf("MarshalText = %q", text)
	}
}

func TestSource_Extension(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want string
	}{
		{"reported flac", Source{Format: "flac", Quality: QualityExHigh}, ".flac"},
		{"reported mp3", Source{Format: "mp3", Quality: QualityLossless}, ".mp3"},
		{"lossless default", Source{Quality: QualityLossless}, ".flac"},
		{"lossy default", Source{Quality: QualityExHigh}, ".mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.src.Extension(); got != tt.want {
				t.Errorf("Extension() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrackRequest_FileStem(t *testing.T) {
	tests := []struct {
		name string
		req  TrackRequest
		want string
	}{
		{
			name: "title first default",
			req:  TrackRequest{TrackID: "1", Title: "Song", Artist: "Singer"},
			want: "Song - Singer",
		},
		{
			name: "artist first",
			req:  TrackRequest{TrackID: "1", Title: "Song", Artist: "Singer", FileNameFormat: NamingArtistFirst},
			want: "Singer - Song",
		},
		{
			name: "quality label",
			req: TrackRequest{TrackID: "1", Title: "Song", Artist: "Singer",
				Quality: QualityLossless, FileNameFormat: NamingTitleFirstQuality},
			want: "Song - Singer [无损]",
		},
		{
			name: "invalid characters",
			req:  TrackRequest{TrackID: "1", Title: "A/B: C", Artist: "D|E", FileNameFormat: NamingTitleFirst},
			want: "A_B_ C - D_E",
		},
		{
			name: "empty hints fall back to id",
			req:  TrackRequest{TrackID: "1901371647"},
			want: "1901371647",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.FileStem(); got != tt.want {
				t.Errorf("FileStem() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrackRequest_Path(t *testing.T) {
	req := TrackRequest{TrackID: "1", Dir: "/music", Title: "Song", Artist: "Singer"}

	if got, want := req.Path(".flac"), filepath.Join("/music", "Song - Singer.flac"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	tests := []struct {
		name  string
		title string
	}{
		{"ascii", strings.Repeat("x", 400)},
		{"cjk", strings.Repeat("晴", 100)},
		{"mixed", "a" + strings.Repeat("晴天", 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			long := TrackRequest{TrackID: "1", Dir: "/music", Title: tt.title, Artist: "Singer"}
			got := long.Path(".flac")
			if len(got) >= maxPathLength {
				t.Errorf("Path() length = %d, want < %d", len(got), maxPathLength)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Path() = %q is not valid UTF-8", got)
			}
			if !strings.HasSuffix(got, ".flac") {
				t.Errorf("Path() = %q lost its extension", got)
			}
		})
	}
}

func TestTrackRequest_Directory(t *testing.T) {
	tests := []struct {
		name string
		req  TrackRequest
		want string
	}{
		{"plain", TrackRequest{Dir: "/music", Album: "A"}, "/music"},
		{"album", TrackRequest{Dir: "/music/{album}", Album: "叶惠美"}, filepath.Join("/music", "叶惠美")},
		{"album sanitized", TrackRequest{Dir: "/music/{album}", Album: "A/B: .live"}, filepath.Join("/music", "A_B_ .live")},
		{"unknown album", TrackRequest{Dir: "/music/{album}"}, filepath.Join("/music", UnknownAlbum)},
		{"artist and album", TrackRequest{Dir: "/music/{artist}/{album}", Artist: "周杰伦", Album: "叶惠美"}, filepath.Join("/music", "周杰伦", "叶惠美")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Directory(); got != tt.want {
				t.Errorf("Directory() = %q, want %q", got, tt.want)
			}
		})
	}

	req := TrackRequest{TrackID: "1", Dir: "/music/{album}", Title: "晴天", Artist: "周杰伦", Album: "叶惠美"}
	if got, want := req.Path(".flac"), filepath.Join("/music", "叶惠美", "晴天 - 周杰伦.flac"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestTrackRequest_SwappedOrder(t *testing.T) {
	tests := []struct {
		name   string
		format string
		want   string
		ok     bool
	}{
		{"default", "", "Singer - Song", true},
		{"title first", NamingTitleFirst, "Singer - Song", true},
		{"artist first", NamingArtistFirst, "Song - Singer", true},
		{"template", "{id} {artist} - {title}", "7 Song - Singer", true},
		{"no artist", "{title}", "Song", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TrackRequest{TrackID: "7", Title: "Song", Artist: "Singer", FileNameFormat: tt.format}
			swapped, ok := req.SwappedOrder()
			if ok != tt.ok {
				t.Fatalf("SwappedOrder() ok = %v, want %v", ok, tt.ok)
			}
			if got := swapped.FileStem(); got != tt.want {
				t.Errorf("FileStem() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripQualitySuffix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"song - singer [无损]", "song - singer"},
		{"song - singer", "song - singer"},
		{"song [live] - singer", "song [live] - singer"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := StripQualitySuffix(tt.input); got != tt.want {
				t.Errorf("StripQualitySuffix(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestState_Terminal(t *testing.T) {
	terminal := map[State]bool{
		StateQueued:      false,
		StateResolving:   false,
		StateDownloading: false,
		StateEmbedding:   false,
		StateDone:        true,
		StateFailed:      true,
		StateCanceled:    true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}
