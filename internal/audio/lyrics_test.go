package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLyricsPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/music/Song - Singer.flac", "/music/Song - Singer.lrc"},
		{"/music/v1.0 - Singer.mp3", "/music/v1.0 - Singer.lrc"},
		{"/music/noext", "/music/noext.lrc"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := LyricsPath(filepath.FromSlash(tt.path)); got != filepath.FromSlash(tt.want) {
				t.Errorf("LyricsPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteLRC(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "晴天 - 周杰伦.flac")

	for _, lyrics := range []string{"[00:01.00]old", "[00:01.00]故事的小黄花"} {
		got, err := WriteLRC(audioPath, lyrics)
		if err != nil {
			t.Fatalf("WriteLRC: %v", err)
		}
		if want := filepath.Join(dir, "晴天 - 周杰伦.lrc"); got != want {
			t.Errorf("path = %q, want %q", got, want)
		}
		data, _ := os.ReadFile(got)
		if string(data) != lyrics {
			t.Errorf("content = %q, want %q", data, lyrics)
		}
	}
	assertNoTempFiles(t, dir)
}

func TestWriteLRC_MissingDirectory(t *testing.T) {
	if _, err := WriteLRC(filepath.Join(t.TempDir(), "absent", "a.flac"), "x"); err == nil {
		t.Error("WriteLRC into a missing directory succeeded")
	}
}
