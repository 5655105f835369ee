// Package engine wires the downloader together from settings: transport
// pool, catalog client, dedup index, embedder and scheduler. Both binaries
// build one Engine and drive it through its Scheduler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/handiism/cloudmusic-downloader/internal/audio"
	"github.com/handiism/cloudmusic-downloader/internal/auth"
	"github.com/handiism/cloudmusic-downloader/internal/config"
	"github.com/handiism/cloudmusic-downloader/internal/dedup"
	"github.com/handiism/cloudmusic-downloader/internal/download"
	"github.com/handiism/cloudmusic-downloader/internal/http"
	ioutils "github.com/handiism/cloudmusic-downloader/internal/io"
	"github.com/handiism/cloudmusic-downloader/internal/model"
	"github.com/handiism/cloudmusic-downloader/internal/netease"
)

// Engine owns every long-lived component of a download session.
//
// Example usage:
//
//	eng, err := engine.New(ctx, settings, logger)
//	if err != nil {
//	    return err
//	}
//	defer eng.Shutdown(context.Background())
//
//	reqs, err := eng.Requests(ctx, engine.ParseIDs("186016, 186001"))
//	tasks, err := eng.Scheduler.Enqueue(reqs...)
//	download.Wait(ctx, tasks)
type Engine struct {
	Settings  *config.Settings
	Pool      *http.Pool
	Client    *netease.Client
	Index     *dedup.Index
	Scheduler *download.Scheduler

	creds     auth.Store
	logger    *slog.Logger
	stopWatch context.CancelFunc
}

// New builds an Engine. When the settings ask for it, the downloads
// directory is watched for files added or removed by other programs.
func New(ctx context.Context, settings *config.Settings, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	creds := settings.Credentials()
	pool := http.NewPool(settings.ToPoolOptions(creds))
	client := netease.NewClient(pool, settings.ToClientOptions(logger))
	index := dedup.NewIndex(logger)

	e := &Engine{
		Settings:  settings,
		Pool:      pool,
		Client:    client,
		Index:     index,
		creds:     creds,
		logger:    logger,
		stopWatch: func() {},
	}

	if settings.WatchDownloads {
		if err := ioutils.EnsureDir(settings.DownloadsPath); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create downloads directory: %w", err)
		}
		watchCtx, cancel := context.WithCancel(ctx)
		if err := index.Watch(watchCtx, settings.DownloadsPath); err != nil {
			logger.Warn("watching downloads directory disabled", "dir", settings.DownloadsPath, "error", err)
		}
		e.stopWatch = cancel
	}

	e.Scheduler = download.NewScheduler(download.Deps{
		Catalog:   client,
		Metadata:  client,
		Transport: pool,
		Embedder:  audio.NewEmbedder(settings.ToTagConfig(), settings.CoverArtInTagsMaxSize, logger),
		Lyrics:    settings.LyricsWriter(),
		Index:     index,
	}, settings.ToSchedulerOptions(logger))

	return e, nil
}

// LoggedIn reports whether a session cookie is available. Without one only
// tracks free for guests can be downloaded, usually at standard quality.
func (e *Engine) LoggedIn(ctx context.Context) bool {
	return auth.LoggedIn(ctx, e.creds)
}

// Requests builds track requests for ids, using the song details as file
// name hints. Ids unknown to the catalog still get a request; it fails
// when resolved.
func (e *Engine) Requests(ctx context.Context, ids []string) ([]model.TrackRequest, error) {
	songs, err := e.Client.Songs(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		e.logger.Warn("song details unavailable, naming files by id", "error", err)
	}

	byID := make(map[string]netease.Song, len(songs))
	for _, s := range songs {
		byID[s.ID] = s
	}

	reqs := make([]model.TrackRequest, 0, len(ids))
	for _, id := range ids {
		song, ok := byID[id]
		if !ok {
			reqs = append(reqs, e.Settings.Request(id))
			continue
		}
		reqs = append(reqs, song.Request(e.Settings.Quality, e.Settings.TrackDir(), e.Settings.FileNameFormat))
	}
	return reqs, nil
}

// WritePlaylist writes a playlist of the finished tasks and returns its
// path. name defaults to the configured playlist file name.
func (e *Engine) WritePlaylist(name string, tasks []*download.Task) (string, error) {
	entries := download.PlaylistEntries(tasks)
	if len(entries) == 0 {
		return "", errors.New("no finished tracks to list")
	}
	if name == "" {
		name = e.Settings.PlaylistFileNameFormat
	}
	path := e.Settings.PlaylistPath(ioutils.SanitizeFileName(name))
	if err := e.Settings.PlaylistCreator().Write(path, name, entries); err != nil {
		return "", err
	}
	e.logger.Info("playlist written", "path", path, "tracks", len(entries))
	return path, nil
}

// Shutdown stops the scheduler, the directory watch and the pool.
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.Scheduler.Shutdown(ctx)
	e.stopWatch()
	e.Pool.Close()
	return err
}

var songIDPattern = regexp.MustCompile(`^\d+$`)

// ParseIDs splits text on commas and whitespace into track ids. Song page
// links ("https://music.163.com/#/song?id=186016") are reduced to their id;
// anything else is dropped.
func ParseIDs(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '，' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})

	var ids []string
	seen := make(map[string]bool)
	for _, f := range fields {
		id := songID(f)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func songID(field string) string {
	if songIDPattern.MatchString(field) {
		return field
	}
	u, err := url.Parse(field)
	if err != nil {
		return ""
	}
	// The web player keeps the query behind a "#/song" fragment.
	query := u.RawQuery
	if _, after, ok := strings.Cut(u.Fragment, "?"); ok {
		query = after
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	if id := values.Get("id"); songIDPattern.MatchString(id) {
		return id
	}
	return ""
}
