package audio

import (
	"path/filepath"
	"strings"

	ioutils "github.com/handiism/cloudmusic-downloader/internal/io"
)

// LyricsExtension is the extension of lyrics sidecar files.
const LyricsExtension = ".lrc"

// LyricsPath returns the sidecar path for the audio file at path:
// "/music/Song - Singer.flac" becomes "/music/Song - Singer.lrc".
func LyricsPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + LyricsExtension
}

// WriteLRC saves lyrics next to the audio file at path and returns the
// sidecar path. An existing sidecar is replaced atomically.
//
// Example:
//
//	lrc, err := audio.WriteLRC("/music/晴天 - 周杰伦.flac", meta.Lyrics)
//	// lrc == "/music/晴天 - 周杰伦.lrc"
func WriteLRC(path, lyrics string) (string, error) {
	dst := LyricsPath(path)
	tmp, err := ioutils.TempSibling(dst, LyricsExtension)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer ioutils.RemoveIfExists(tmpPath)

	if _, err := tmp.WriteString(lyrics); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := ioutils.ReplaceFile(tmpPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}
