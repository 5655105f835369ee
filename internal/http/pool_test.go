package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/handiism/cloudmusic-downloader/internal/auth"
)

func servePayload(payload []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "track.flac", time.Time{}, bytes.NewReader(payload))
	}
}

func readAll(t *testing.T, s *Stream, maxChunk int) []byte {
	t.Helper()
	var out []byte
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if len(chunk) > maxChunk {
			t.Fatalf("chunk of %d bytes exceeds %d", len(chunk), maxChunk)
		}
		out = append(out, chunk...)
	}
}

func TestPool_Fetch(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 5000)
	srv := httptest.NewServer(servePayload(payload))
	defer srv.Close()

	pool := NewPool(Options{Size: 2, ChunkSize: 4096})
	defer pool.Close()

	stream, err := pool.Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if pool.InUse() != 1 {
		t.Errorf("InUse() = %d while streaming, want 1", pool.InUse())
	}
	if stream.Total != int64(len(payload)) {
		t.Errorf("Total = %d, want %d", stream.Total, len(payload))
	}

	got := readAll(t, stream, 4096)
	if !bytes.Equal(got, payload) {
		t.Error("streamed bytes differ from payload")
	}

	stream.Close()
	stream.Close()
	if pool.InUse() != 0 {
		t.Errorf("InUse() = %d after Close, want 0", pool.InUse())
	}
}

func TestPool_FetchRange(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdef"), 1000)

	t.Run("server honours range", func(t *testing.T) {
		srv := httptest.NewServer(servePayload(payload))
		defer srv.Close()
		pool := NewPool(Options{})

		stream, err := pool.Fetch(context.Background(), srv.URL, 1000)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		defer stream.Close()

		if stream.Offset != 1000 {
			t.Errorf("Offset = %d, want 1000", stream.Offset)
		}
		if stream.Total != int64(len(payload)) {
			t.Errorf("Total = %d, want %d", stream.Total, len(payload))
		}
		if got := readAll(t, stream, DefaultChunkSize); !bytes.Equal(got, payload[1000:]) {
			t.Error("ranged bytes differ from payload tail")
		}
	})

	t.Run("server ignores range", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(payload)
		}))
		defer srv.Close()
		pool := NewPool(Options{})

		stream, err := pool.Fetch(context.Background(), srv.URL, 1000)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		defer stream.Close()

		if stream.Offset != 0 {
			t.Errorf("Offset = %d, want 0", stream.Offset)
		}
		if got := readAll(t, stream, DefaultChunkSize); !bytes.Equal(got, payload) {
			t.Error("restarted transfer should deliver the whole payload")
		}
	})
}

func TestPool_FetchCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10000000")
		w.Write(make([]byte, 1024))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	pool := NewPool(Options{Size: 1, ChunkSize: 1024})
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := pool.Fetch(ctx, srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := stream.Next(); err != nil {
		t.Fatalf("first chunk: %v", err)
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for pool.InUse() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("lease not returned after cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := stream.Next(); !errors.Is(err, context.Canceled) {
		t.Errorf("Next after cancel = %v, want context.Canceled", err)
	}
}

func TestPool_LeaseBound(t *testing.T) {
	srv := httptest.NewServer(servePayload([]byte("data")))
	defer srv.Close()

	pool := NewPool(Options{Size: 1})
	held, err := pool.Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Fetch(ctx, srv.URL, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Fetch = %v, want deadline exceeded while the only lease is held", err)
	}

	held.Close()
	stream, err := pool.Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch after release: %v", err)
	}
	stream.Close()
}

func TestPool_StatusErrors(t *testing.T) {
	tests := []struct {
		code      int
		transient bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()
			pool := NewPool(Options{})

			_, err := pool.Fetch(context.Background(), srv.URL, 0)
			var status *StatusError
			if !errors.As(err, &status) || status.Code != tt.code {
				t.Fatalf("Fetch error = %v, want StatusError %d", err, tt.code)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v", !tt.transient, tt.transient)
			}
			if pool.InUse() != 0 {
				t.Errorf("lease leaked on status error")
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"truncated", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"plain", errors.New("boom"), false},
		{"auth", auth.ErrAbsent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPool_Credentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Header.Get("Cookie"))
	}))
	defer srv.Close()

	pool := NewPool(Options{Credentials: auth.Static("MUSIC_U=abc")})
	body, err := pool.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "MUSIC_U=abc" {
		t.Errorf("Cookie header = %q", body)
	}

	anonymous := NewPool(Options{Credentials: auth.Static("")})
	if _, err := anonymous.Fetch(context.Background(), srv.URL, 0); !errors.Is(err, auth.ErrAbsent) {
		t.Errorf("Fetch without token = %v, want auth.ErrAbsent", err)
	}
	if anonymous.InUse() != 0 {
		t.Error("lease leaked on credential error")
	}
}

func TestPool_PostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.ParseForm()
		io.WriteString(w, r.PostForm.Get("params")+"|"+r.Header.Get("Referer"))
	}))
	defer srv.Close()

	pool := NewPool(Options{})
	header := http.Header{"Referer": {"https://music.163.com"}}
	body, err := pool.PostForm(context.Background(), srv.URL, url.Values{"params": {"ABCD"}}, header)
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if !strings.HasPrefix(string(body), "ABCD|https://music.163.com") {
		t.Errorf("body = %q", body)
	}
}

func TestPool_PostFormMergesCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Join(r.Header.Values("Cookie"), "|"))
	}))
	defer srv.Close()

	pool := NewPool(Options{Credentials: auth.Static("MUSIC_U=abc")})
	header := http.Header{"Cookie": {"os=pc"}}
	body, err := pool.PostForm(context.Background(), srv.URL, url.Values{}, header)
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if got, want := string(body), "os=pc; MUSIC_U=abc"; got != want {
		t.Errorf("Cookie header = %q, want %q", got, want)
	}
}
