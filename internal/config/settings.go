package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/handiism/cloudmusic-downloader/internal/audio"
	"github.com/handiism/cloudmusic-downloader/internal/auth"
	"github.com/handiism/cloudmusic-downloader/internal/download"
	"github.com/handiism/cloudmusic-downloader/internal/http"
	"github.com/handiism/cloudmusic-downloader/internal/logging"
	"github.com/handiism/cloudmusic-downloader/internal/model"
	"github.com/handiism/cloudmusic-downloader/internal/netease"
	"gopkg.in/yaml.v3"
)

// CookieEnv names the environment variable that overrides the cookie file.
const CookieEnv = "CLOUDMUSIC_COOKIE"

// Settings holds all configuration options.
type Settings struct {
	// Download settings
	DownloadsPath          string        `json:"downloads_path" yaml:"downloads_path" validate:"required"`
	Quality                model.Quality `json:"quality" yaml:"quality"`
	MaxConcurrentDownloads int           `json:"max_concurrent_downloads" yaml:"max_concurrent_downloads" validate:"min=1,max=32"`
	DownloadMaxRetries     int           `json:"download_max_retries" yaml:"download_max_retries" validate:"min=0"`
	DownloadRetryCooldown  float64       `json:"download_retry_cooldown" yaml:"download_retry_cooldown" validate:"min=0"`
	DownloadRetryExponent  float64       `json:"download_retry_exponent" yaml:"download_retry_exponent" validate:"gte=1"`
	ProgressIntervalMillis int           `json:"progress_interval_ms" yaml:"progress_interval_ms" validate:"min=1"`
	EventBuffer            int           `json:"event_buffer" yaml:"event_buffer" validate:"min=1"`
	WatchDownloads         bool          `json:"watch_downloads" yaml:"watch_downloads"`
	GroupByAlbum           bool          `json:"group_by_album" yaml:"group_by_album"`

	// Transport
	ConnectionPoolSize int     `json:"connection_pool_size" yaml:"connection_pool_size" validate:"min=1"`
	ChunkSize          int     `json:"chunk_size" yaml:"chunk_size" validate:"min=1024"`
	RequestTimeout     float64 `json:"request_timeout" yaml:"request_timeout" validate:"gt=0"`

	// Catalog
	CookieFile string `json:"cookie_file" yaml:"cookie_file"`
	APIBase    string `json:"api_base,omitempty" yaml:"api_base,omitempty" validate:"omitempty,url"`
	WebBase    string `json:"web_base,omitempty" yaml:"web_base,omitempty" validate:"omitempty,url"`

	// File naming
	FileNameFormat         string `json:"file_name_format" yaml:"file_name_format" validate:"required"`
	PlaylistFileNameFormat string `json:"playlist_file_name_format" yaml:"playlist_file_name_format"`

	// Cover art settings
	CoverArtInTagsMaxSize int `json:"cover_art_in_tags_max_size" yaml:"cover_art_in_tags_max_size" validate:"min=0"`

	// Playlist settings
	CreatePlaylist bool   `json:"create_playlist" yaml:"create_playlist"`
	PlaylistFormat string `json:"playlist_format" yaml:"playlist_format" validate:"oneof=m3u pls wpl zpl"`
	M3UExtended    bool   `json:"m3u_extended" yaml:"m3u_extended"`

	// Tag settings
	ModifyTags     bool `json:"modify_tags" yaml:"modify_tags"`
	DownloadLyrics bool `json:"download_lyrics" yaml:"download_lyrics"`

	// Logging
	LogLevel      string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string `json:"log_format" yaml:"log_format" validate:"oneof=text logfmt json"`
	LogFile       string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	LogMaxSizeMB  int    `json:"log_max_size_mb" yaml:"log_max_size_mb" validate:"min=0"`
	LogMaxBackups int    `json:"log_max_backups" yaml:"log_max_backups" validate:"min=0"`

	// Metrics
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		DownloadsPath:          filepath.Join(homeDir, "Music", "CloudMusic"),
		Quality:                model.QualityLossless,
		MaxConcurrentDownloads: 3,
		DownloadMaxRetries:     3,
		DownloadRetryCooldown:  1,
		DownloadRetryExponent:  2,
		ProgressIntervalMillis: 100,
		EventBuffer:            download.DefaultSubscriberBuffer,
		WatchDownloads:         false,
		GroupByAlbum:           false,

		ConnectionPoolSize: http.DefaultPoolSize,
		ChunkSize:          http.DefaultChunkSize,
		RequestTimeout:     http.DefaultTimeout.Seconds(),

		CookieFile: "cookie.txt",

		FileNameFormat:         model.NamingTitleFirst,
		PlaylistFileNameFormat: "cloudmusic",

		CoverArtInTagsMaxSize: 500,

		CreatePlaylist: false,
		PlaylistFormat: "m3u",
		M3UExtended:    true,

		ModifyTags:     true,
		DownloadLyrics: false,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
	}
}

// Load reads settings from a JSON (.json) or YAML (.yaml, .yml) file.
// Values missing from the file keep their defaults; a missing file yields
// the defaults. The result is validated.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, settings)
	} else {
		err = json.Unmarshal(data, settings)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// Save writes settings to a JSON or YAML file, chosen by extension.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the settings against their constraints.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if !s.Quality.Valid() {
		return fmt.Errorf("config validation failed: unknown quality %d", s.Quality)
	}
	return nil
}

// Credentials returns the credential store: a static cookie from the
// CLOUDMUSIC_COOKIE environment variable when set, otherwise the cookie file.
func (s *Settings) Credentials() auth.Store {
	if cookie := os.Getenv(CookieEnv); cookie != "" {
		return auth.Static(cookie)
	}
	return auth.NewCookieFile(s.CookieFile)
}

// ToPoolOptions converts settings to transport pool options.
func (s *Settings) ToPoolOptions(creds auth.Store) http.Options {
	return http.Options{
		Size:        s.ConnectionPoolSize,
		ChunkSize:   s.ChunkSize,
		Timeout:     time.Duration(s.RequestTimeout * float64(time.Second)),
		Credentials: creds,
	}
}

// ToClientOptions converts settings to catalog client options.
func (s *Settings) ToClientOptions(logger *slog.Logger) netease.Options {
	return netease.Options{
		APIBase: s.APIBase,
		WebBase: s.WebBase,
		Logger:  logger,
	}
}

// ToSchedulerOptions converts settings to scheduler options.
func (s *Settings) ToSchedulerOptions(logger *slog.Logger) download.Options {
	retries := s.DownloadMaxRetries
	if retries == 0 {
		retries = -1 // zero selects the scheduler default
	}
	return download.Options{
		Concurrency:      s.MaxConcurrentDownloads,
		MaxRetries:       retries,
		RetryCooldown:    s.DownloadRetryCooldown,
		RetryExponent:    s.DownloadRetryExponent,
		ProgressInterval: time.Duration(s.ProgressIntervalMillis) * time.Millisecond,
		SubscriberBuffer: s.EventBuffer,
		Logger:           logger,
	}
}

// ToLoggingOptions converts settings to logger options.
func (s *Settings) ToLoggingOptions() logging.Options {
	return logging.Options{
		Level:      s.LogLevel,
		Format:     s.LogFormat,
		File:       s.LogFile,
		MaxSizeMB:  s.LogMaxSizeMB,
		MaxBackups: s.LogMaxBackups,
	}
}

// ToTagConfig converts settings to the embedder's tag configuration.
func (s *Settings) ToTagConfig() *audio.TagConfig {
	cfg := audio.DefaultTagConfig()
	cfg.ModifyTags = s.ModifyTags
	return cfg
}

// PlaylistCreator returns the playlist writer for the configured format.
func (s *Settings) PlaylistCreator() *audio.PlaylistCreator {
	return audio.NewPlaylistCreator(audio.ParsePlaylistFormat(s.PlaylistFormat), s.M3UExtended)
}

// PlaylistPath returns the playlist file path for a batch.
func (s *Settings) PlaylistPath(name string) string {
	if name == "" {
		name = s.PlaylistFileNameFormat
	}
	ext := audio.ParsePlaylistFormat(s.PlaylistFormat).Extension()
	return filepath.Join(s.DownloadsPath, name+ext)
}

// LyricsWriter returns the lyrics sidecar writer, or nil when lyrics files
// are disabled.
func (s *Settings) LyricsWriter() download.LyricsWriter {
	if !s.DownloadLyrics {
		return nil
	}
	return audio.WriteLRC
}

// TrackDir returns the destination directory template of every track:
// the downloads directory, with an album subdirectory when GroupByAlbum is
// set.
func (s *Settings) TrackDir() string {
	if s.GroupByAlbum {
		return filepath.Join(s.DownloadsPath, model.AlbumDirectory)
	}
	return s.DownloadsPath
}

// Request builds a track request for trackID from the settings.
func (s *Settings) Request(trackID string) model.TrackRequest {
	return model.TrackRequest{
		TrackID:        trackID,
		Quality:        s.Quality,
		Dir:            s.TrackDir(),
		FileNameFormat: s.FileNameFormat,
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
