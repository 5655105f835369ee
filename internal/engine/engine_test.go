package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dhowden/tag"
	"github.com/handiism/cloudmusic-downloader/internal/config"
	"github.com/handiism/cloudmusic-downloader/internal/download"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"186016", []string{"186016"}},
		{"186016, 186001 186002\n186003", []string{"186016", "186001", "186002", "186003"}},
		{"186016，186001", []string{"186016", "186001"}},
		{"https://music.163.com/#/song?id=186016", []string{"186016"}},
		{"https://music.163.com/song?id=186001&userid=1", []string{"186001"}},
		{"186016 186016", []string{"186016"}},
		{"abc, https://example.com/, 42", []string{"42"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseIDs(tt.input); !slices.Equal(got, tt.want) {
				t.Errorf("ParseIDs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// fakeCloud serves the catalog endpoints and the audio file.
func fakeCloud(t *testing.T, audio []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/eapi/song/enhance/player/url/v1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"code":200,"data":[{"url":%q,"size":%d,"level":"exhigh","type":"mp3"}]}`,
			srv.URL+"/audio.mp3", len(audio))
	})
	mux.HandleFunc("/api/v3/song/detail", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if !strings.Contains(r.PostForm.Get("c"), `"id":186016`) {
			io.WriteString(w, `{"code":200,"songs":[]}`)
			return
		}
		io.WriteString(w, `{"code":200,"songs":[{"id":186016,"name":"晴天","ar":[{"name":"周杰伦"}],"al":{"name":"叶惠美","picUrl":""}}]}`)
	})
	mux.HandleFunc("/api/song/lyric", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":200,"lrc":{"lyric":"[00:01.00]故事的小黄花"}}`)
	})
	mux.HandleFunc("/audio.mp3", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "audio.mp3", time.Time{}, bytes.NewReader(audio))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testSettings(t *testing.T, srv *httptest.Server) *config.Settings {
	t.Helper()
	t.Setenv(config.CookieEnv, "MUSIC_U=token")
	s := config.DefaultSettings()
	s.DownloadsPath = t.TempDir()
	s.APIBase = srv.URL
	s.WebBase = srv.URL
	s.DownloadRetryCooldown = 0
	return s
}

func TestEngine_DownloadsBatch(t *testing.T) {
	srv := fakeCloud(t, mp3Audio())
	settings := testSettings(t, srv)
	settings.WatchDownloads = true

	ctx := context.Background()
	eng, err := New(ctx, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reqs, err := eng.Requests(ctx, ParseIDs("186016, 999"))
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if reqs[0].Title != "晴天" || reqs[0].Artist != "周杰伦" || reqs[1].Title != "" {
		t.Errorf("requests = %+v", reqs)
	}

	tasks, err := eng.Scheduler.Enqueue(reqs[0])
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := download.Wait(waitCtx, tasks); err != nil {
		t.Fatal(err)
	}

	st := tasks[0].Status()
	if st.State != model.StateDone || st.Partial || st.Granted != model.QualityExHigh {
		t.Fatalf("status = %+v, want done at exhigh", st)
	}
	if want := filepath.Join(settings.DownloadsPath, "晴天 - 周杰伦.mp3"); st.Path != want {
		t.Errorf("path = %q, want %q", st.Path, want)
	}

	f, err := os.Open(st.Path)
	if err != nil {
		t.Fatal(err)
	}
	m, err := tag.ReadFrom(f)
	f.Close()
	if err != nil {
		t.Fatalf("reading tags: %v", err)
	}
	if m.Title() != "晴天" || m.Album() != "叶惠美" || !strings.Contains(m.Lyrics(), "故事的小黄花") {
		t.Errorf("tags title %q album %q lyrics %q", m.Title(), m.Album(), m.Lyrics())
	}

	path, err := eng.WritePlaylist("batch", tasks)
	if err != nil {
		t.Fatalf("WritePlaylist: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "晴天 - 周杰伦.mp3") {
		t.Errorf("playlist:\n%s", data)
	}

	if err := eng.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestEngine_WritePlaylistNeedsEntries(t *testing.T) {
	srv := fakeCloud(t, nil)
	eng, err := New(context.Background(), testSettings(t, srv), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Shutdown(context.Background())

	if _, err := eng.WritePlaylist("", nil); err == nil {
		t.Error("empty playlist should be refused")
	}
}

func TestEngine_AlbumFoldersAndLyrics(t *testing.T) {
	srv := fakeCloud(t, mp3Audio())
	settings := testSettings(t, srv)
	settings.GroupByAlbum = true
	settings.DownloadLyrics = true

	ctx := context.Background()
	eng, err := New(ctx, settings, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Shutdown(ctx)

	reqs, err := eng.Requests(ctx, []string{"186016", "999"})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(settings.DownloadsPath, "叶惠美"); reqs[0].Directory() != want {
		t.Errorf("known album dir = %q, want %q", reqs[0].Directory(), want)
	}
	if want := filepath.Join(settings.DownloadsPath, model.UnknownAlbum); reqs[1].Directory() != want {
		t.Errorf("unknown album dir = %q, want %q", reqs[1].Directory(), want)
	}

	tasks, err := eng.Scheduler.Enqueue(reqs[0])
	if err != nil {
		t.Fatal(err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := download.Wait(waitCtx, tasks); err != nil {
		t.Fatal(err)
	}

	lrc, err := os.ReadFile(filepath.Join(settings.DownloadsPath, "叶惠美", "晴天 - 周杰伦.lrc"))
	if err != nil {
		t.Fatalf("lyrics sidecar: %v", err)
	}
	if !strings.Contains(string(lrc), "故事的小黄花") {
		t.Errorf("sidecar = %q", lrc)
	}
}

func TestEngine_LoggedIn(t *testing.T) {
	srv := fakeCloud(t, nil)
	settings := testSettings(t, srv)
	ctx := context.Background()

	eng, err := New(ctx, settings, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Shutdown(ctx)
	if !eng.LoggedIn(ctx) {
		t.Error("LoggedIn() = false with a session cookie")
	}

	t.Setenv(config.CookieEnv, "")
	settings.CookieFile = filepath.Join(t.TempDir(), "absent.txt")
	guest, err := New(ctx, settings, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer guest.Shutdown(ctx)
	if guest.LoggedIn(ctx) {
		t.Error("LoggedIn() = true without a cookie")
	}
}

func mp3Audio() []byte {
	frame := append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 413)...)
	return bytes.Repeat(frame, 20)
}
