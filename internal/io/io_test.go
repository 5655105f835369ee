package ioutils

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal-file.mp3", "normal-file.mp3"},
		{"file:with:colons.mp3", "file_with_colons.mp3"},
		{"file<with>brackets.mp3", "file_with_brackets.mp3"},
		{"file/with\\slashes.mp3", "file_with_slashes.mp3"},
		{"file|with|pipes.mp3", "file_with_pipes.mp3"},
		{"file?with*wildcards.mp3", "file_with_wildcards.mp3"},
		{"file\"with\"quotes.mp3", "file_with_quotes.mp3"},
		{"trailing dots...", "trailing dots"},
		{"multiple   spaces", "multiple spaces"},
		{"trailing spaces   ", "trailing spaces"},
		{"晴天 - 周杰伦", "晴天 - 周杰伦"},
		{".hack - Singer", "hack - Singer"},
		{" ...dots both ends.. ", "dots both ends"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFileName(tt.input); got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	payload := bytes.Repeat([]byte("abc"), 10000)
	if err := os.WriteFile(src, payload, 0644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(context.Background(), src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("copied content differs from source")
	}
}

func TestCopyFile_Canceled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := CopyFile(ctx, src, filepath.Join(dir, "dst.bin"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("CopyFile() error = %v, want context.Canceled", err)
	}
}

func TestTempSiblingAndReplace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "song.flac")
	if err := os.WriteFile(target, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	tmp, err := TempSibling(target, ".tmp")
	if err != nil {
		t.Fatalf("TempSibling: %v", err)
	}
	if filepath.Dir(tmp.Name()) != dir {
		t.Errorf("temp file %q not next to target", tmp.Name())
	}
	if !strings.HasPrefix(filepath.Base(tmp.Name()), ".song.flac.") {
		t.Errorf("temp file name %q should be hidden and derived from target", tmp.Name())
	}
	tmp.WriteString("new")
	tmp.Close()

	if err := ReplaceFile(tmp.Name(), target); err != nil {
		t.Fatalf("ReplaceFile: %v", err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "new" {
		t.Errorf("target content = %q, want %q", got, "new")
	}
	if _, err := os.Stat(tmp.Name()); !os.IsNotExist(err) {
		t.Error("temp file should be gone after replace")
	}
}

func TestIsTempSibling(t *testing.T) {
	dir := t.TempDir()
	tmp, err := TempSibling(filepath.Join(dir, "Song - Singer.flac"), ".flac")
	if err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	tests := []struct {
		name string
		want bool
	}{
		{tmp.Name(), true},
		{".Song - Singer.mp3.123456.mp3", true},
		{"Song - Singer.flac", false},
		{".hack - Singer.flac", false},
		{".hack 2.0.flac", false},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.name), func(t *testing.T) {
			if got := IsTempSibling(tt.name); got != tt.want {
				t.Errorf("IsTempSibling(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	if err := RemoveIfExists(filepath.Join(dir, "missing")); err != nil {
		t.Errorf("missing file: %v", err)
	}
	if err := RemoveIfExists(""); err != nil {
		t.Errorf("empty path: %v", err)
	}
}

func TestImageService_CoverJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1200, 800))
	for x := 0; x < 1200; x++ {
		img.Set(x, x%800, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	svc := NewImageService()
	out, err := svc.CoverJPEG(context.Background(), buf.Bytes(), 500)
	if err != nil {
		t.Fatalf("CoverJPEG: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("result is not a JPEG: %v", err)
	}
	if cfg.Width != 500 || cfg.Height != 333 {
		t.Errorf("resized to %dx%d, want 500x333", cfg.Width, cfg.Height)
	}
}

func TestImageService_InvalidData(t *testing.T) {
	svc := NewImageService()
	if _, err := svc.CoverJPEG(context.Background(), []byte("not an image"), 500); err == nil {
		t.Error("expected decode error")
	}
}
