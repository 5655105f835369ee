package ioutils

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	invalidChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	repeatedSpaces = regexp.MustCompile(`\s+`)
)

// CopyFile copies src to dst, creating or truncating dst.
//
// The copy is aborted between blocks when ctx is canceled; dst is then left
// in an undefined state and should be removed by the caller.
//
// Example:
//
//	err := CopyFile(ctx, "/music/song.flac", "/music/.song.flac.embed")
func CopyFile(ctx context.Context, src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	info, err := sourceFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, &contextReader{ctx: ctx, r: sourceFile}); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}

// ReplaceFile atomically moves src over dst.
//
// Both paths must live on the same file system; callers create src next to
// dst (see TempSibling) to guarantee that.
func ReplaceFile(src, dst string) error {
	return os.Rename(src, dst)
}

// TempSibling creates an empty hidden file in the same directory as path.
// The caller owns the returned file and must close and remove it.
func TempSibling(path, suffix string) (*os.File, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	return os.CreateTemp(dir, "."+base+".*"+suffix)
}

var tempSibling = regexp.MustCompile(`^\.(.+)\.\d+(\.[^.]*)?$`)

// IsTempSibling reports whether name was created by TempSibling for a file
// that keeps its own extension as suffix, e.g. ".song.flac.4096.flac".
func IsTempSibling(name string) bool {
	m := tempSibling.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return false
	}
	return m[2] == "" || strings.EqualFold(filepath.Ext(m[1]), m[2])
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars 0x00-0x1f) → underscore
//   - Multiple whitespace → single space
//   - Leading and trailing dots and whitespace → removed (hidden files,
//     Windows limitation)
//
// Example:
//
//	SanitizeFileName("Song: Part 1/2")     // Returns "Song_ Part 1_2"
//	SanitizeFileName("Track...")           // Returns "Track"
//	SanitizeFileName(".hack")              // Returns "hack"
//	SanitizeFileName("Name   with  spaces") // Returns "Name with spaces"
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = repeatedSpaces.ReplaceAllString(name, " ")
	return strings.Trim(name, " .")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// contextReader stops a copy at the next Read once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
