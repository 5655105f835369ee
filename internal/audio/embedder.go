package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	ioutils "github.com/handiism/cloudmusic-downloader/internal/io"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// ErrUnsupportedFormat is returned for containers the embedder cannot tag.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format is an audio container the embedder knows about.
type Format string

const (
	FormatUnknown Format = ""
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
)

// writer tags a file in place. cover is already a JPEG, or nil.
type writer func(path string, cfg *TagConfig, meta model.Metadata, cover []byte) error

// writers lists the containers Embed can tag. Each of them carries cover
// art, so a format is either fully supported or not at all.
var writers = map[Format]writer{
	FormatMP3:  writeID3,
	FormatFLAC: writeVorbis,
}

// Embedder writes tags, cover art and lyrics into downloaded files.
//
// Embedder never edits the original file directly. It tags a hidden copy
// next to it and renames the copy over the original only when every step
// succeeded, so a failure leaves the audio exactly as downloaded.
//
// Supported containers:
//   - MP3 (ID3v2.4: TIT2, TPE1, TPE2, TALB, USLT, APIC)
//   - FLAC (Vorbis comments and a PICTURE block)
//
// Example:
//
//	embedder := NewEmbedder(DefaultTagConfig(), 500, logger)
//	err := embedder.Embed(ctx, "/music/Song - Singer.flac", model.Metadata{
//	    Title:  "Song",
//	    Artist: "Singer",
//	    Cover:  coverBytes,
//	})
type Embedder struct {
	config    *TagConfig
	images    *ioutils.ImageService
	coverSize int
	logger    *slog.Logger
}

// NewEmbedder creates an Embedder.
//
// If config is nil, DefaultTagConfig() is used. Covers are converted to JPEG
// and scaled to fit within coverSize pixels; zero keeps the original size.
func NewEmbedder(config *TagConfig, coverSize int, logger *slog.Logger) *Embedder {
	if config == nil {
		config = DefaultTagConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		config:    config,
		images:    ioutils.NewImageService(),
		coverSize: coverSize,
		logger:    logger,
	}
}

// Embed writes meta into the file at path.
//
// This method:
//  1. Detects the container from the file content
//  2. Prepares the cover as a bounded JPEG
//  3. Copies the file to a hidden temporary sibling
//  4. Tags the copy
//  5. Atomically replaces the original with the copy
//
// Containers without a writer return ErrUnsupportedFormat and the original
// file is left untouched.
func (e *Embedder) Embed(ctx context.Context, path string, meta model.Metadata) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}

	write, ok := writers[format]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	var cover []byte
	if len(meta.Cover) > 0 {
		cover, err = e.images.CoverJPEG(ctx, meta.Cover, e.coverSize)
		if err != nil {
			return fmt.Errorf("prepare cover: %w", err)
		}
	} else {
		e.logger.Debug("no cover art to embed", "path", path)
	}

	tmp, err := ioutils.TempSibling(path, filepath.Ext(path))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer ioutils.RemoveIfExists(tmpPath)

	if err := ioutils.CopyFile(ctx, path, tmpPath); err != nil {
		return fmt.Errorf("copy for tagging: %w", err)
	}

	if err := write(tmpPath, e.config, meta, cover); err != nil {
		return fmt.Errorf("write %s tags: %w", format, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ioutils.ReplaceFile(tmpPath, path); err != nil {
		return err
	}

	e.logger.Debug("embedded metadata", "path", path, "format", format,
		"cover", len(cover) > 0, "lyrics", meta.Lyrics != "")
	return nil
}

// DetectFormat identifies the container of the file at path.
//
// The file content wins over its extension: tagged files are recognised by
// their headers, untagged MP3s by an MPEG frame sync. The extension is only
// consulted when the content is inconclusive.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	if _, fileType, err := tag.Identify(f); err == nil {
		switch fileType {
		case tag.MP3:
			return FormatMP3, nil
		case tag.FLAC:
			return FormatFLAC, nil
		case tag.OGG:
			return FormatOGG, nil
		case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
			return FormatM4A, nil
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return FormatUnknown, err
	}
	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC, nil
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return FormatMP3, nil
	case ".flac":
		return FormatFLAC, nil
	}
	return FormatUnknown, nil
}
