// Package dedup tracks which destination files already exist so that
// finished tracks are not downloaded twice, and which destinations are
// currently being written so that two tasks never write the same file.
package dedup

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	ioutils "github.com/handiism/cloudmusic-downloader/internal/io"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

var (
	// ErrExists means the destination is already on disk.
	ErrExists = errors.New("destination already exists")

	// ErrClaimed means another task is currently writing the destination.
	ErrClaimed = errors.New("destination claimed by another task")
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
}

// dirIndex holds the audio files found under one destination directory,
// keyed by lowercased file stem. stripped is keyed by the stem without a
// trailing "[quality]" label.
type dirIndex struct {
	exact    map[string]string
	stripped map[string]string
}

func newDirIndex() *dirIndex {
	return &dirIndex{
		exact:    make(map[string]string),
		stripped: make(map[string]string),
	}
}

func (d *dirIndex) add(path string) {
	stem := stemKey(path)
	d.exact[stem] = path
	d.stripped[strings.ToLower(model.StripQualitySuffix(stem))] = path
}

func (d *dirIndex) remove(path string) {
	stem := stemKey(path)
	if d.exact[stem] == path {
		delete(d.exact, stem)
	}
	stripped := strings.ToLower(model.StripQualitySuffix(stem))
	if d.stripped[stripped] == path {
		delete(d.stripped, stripped)
	}
}

// Index is the set of destination files already present plus the set of
// destinations claimed by in-flight tasks.
//
// A directory is scanned recursively the first time a request targets it.
// After that the index is only updated incrementally through Register,
// Unregister and Watch. Names compare case-insensitively and without
// extension, so an existing .mp3 satisfies a request that would produce a
// .flac.
//
// Index is safe for concurrent use.
//
// Example:
//
//	index := dedup.NewIndex(logger)
//	if path, ok := index.Exists(req); ok {
//	    fmt.Println("already have", path)
//	}
type Index struct {
	mu     sync.RWMutex
	dirs   map[string]*dirIndex
	claims map[string]struct{}
	logger *slog.Logger
}

// NewIndex creates an empty Index.
func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		dirs:   make(map[string]*dirIndex),
		claims: make(map[string]struct{}),
		logger: logger,
	}
}

// Scan indexes dir if it has not been indexed yet. A missing directory is
// indexed as empty.
func (x *Index) Scan(dir string) error {
	dir = filepath.Clean(dir)

	x.mu.RLock()
	_, done := x.dirs[dir]
	x.mu.RUnlock()
	if done {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	return x.scanLocked(dir)
}

func (x *Index) scanLocked(dir string) error {
	if _, done := x.dirs[dir]; done {
		return nil
	}

	idx := newDirIndex()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !isAudioFile(path) {
			return nil
		}
		idx.add(path)
		return nil
	})
	if err != nil {
		return err
	}

	x.dirs[dir] = idx
	x.logger.Debug("indexed destination directory", "dir", dir, "files", len(idx.exact))
	return nil
}

// Exists reports whether a file satisfying req is already on disk and
// returns its path.
//
// When the naming template does not embed the quality label, a file whose
// name only differs by a trailing "[label]" also counts, and so does a file
// named with title and artist in the other order.
func (x *Index) Exists(req model.TrackRequest) (string, bool) {
	dir := filepath.Clean(req.Directory())
	if err := x.Scan(dir); err != nil {
		x.logger.Warn("scanning destination directory", "dir", dir, "error", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.lookupLocked(dir, req)
}

func (x *Index) lookupLocked(dir string, req model.TrackRequest) (string, bool) {
	idx, ok := x.dirs[dir]
	if !ok {
		return "", false
	}

	stem := stemOf(req)
	if path, ok := idx.exact[stem]; ok {
		return path, true
	}
	if req.UsesQualityInName() {
		return "", false
	}

	if path, ok := idx.stripped[stem]; ok {
		return path, true
	}
	if swapped, ok := req.SwappedOrder(); ok {
		other := stemOf(swapped)
		if path, ok := idx.exact[other]; ok {
			return path, true
		}
		if path, ok := idx.stripped[other]; ok {
			return path, true
		}
	}
	return "", false
}

func stemOf(req model.TrackRequest) string {
	return strings.ToLower(filepath.Base(req.PathStem()))
}

// Claim reserves the destination of req for the caller.
//
// It returns ErrExists when a matching file is already on disk and
// ErrClaimed when another caller holds the destination. A successful Claim
// must be paired with Release.
func (x *Index) Claim(req model.TrackRequest) error {
	dir := filepath.Clean(req.Directory())
	if err := x.Scan(dir); err != nil {
		x.logger.Warn("scanning destination directory", "dir", dir, "error", err)
	}

	key := claimKey(req)

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.lookupLocked(dir, req); ok {
		return ErrExists
	}
	if _, ok := x.claims[key]; ok {
		return ErrClaimed
	}
	x.claims[key] = struct{}{}
	return nil
}

// Release drops the claim on the destination of req.
func (x *Index) Release(req model.TrackRequest) {
	x.mu.Lock()
	delete(x.claims, claimKey(req))
	x.mu.Unlock()
}

// Claimed returns the number of destinations currently claimed.
func (x *Index) Claimed() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.claims)
}

// Register records a finished file. Only directories that were already
// indexed are updated; others pick the file up when first scanned.
func (x *Index) Register(path string) {
	if !isAudioFile(path) {
		return
	}
	path = filepath.Clean(path)

	x.mu.Lock()
	defer x.mu.Unlock()
	for dir, idx := range x.dirs {
		if within(dir, path) {
			idx.add(path)
		}
	}
}

// Unregister forgets a file that was removed from disk.
func (x *Index) Unregister(path string) {
	path = filepath.Clean(path)

	x.mu.Lock()
	defer x.mu.Unlock()
	for dir, idx := range x.dirs {
		if within(dir, path) {
			idx.remove(path)
		}
	}
}

func claimKey(req model.TrackRequest) string {
	return strings.ToLower(filepath.Clean(req.PathStem()))
}

func stemKey(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// isAudioFile reports whether path is a finished audio file. Copies the
// embedder is still tagging are skipped.
func isAudioFile(path string) bool {
	base := filepath.Base(path)
	if ioutils.IsTempSibling(base) {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(base))]
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
