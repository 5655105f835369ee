// Package config provides configuration management for cloudmusic-downloader.
//
// This package handles:
//   - Loading and saving settings from JSON or YAML files
//   - Default configuration values
//   - Validation of every field
//   - Conversion to the options of the pool, catalog client, scheduler,
//     embedder and playlist writer
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Downloads to ~/Music/CloudMusic as "{title} - {artist}"
//	// Lossless quality, 3 concurrent downloads, 10 pooled connections
//	// 3 retries per tier with a 1s, 2s, 4s backoff
//
// # Loading from File
//
// The format follows the extension: .yaml and .yml are YAML, anything
// else is JSON. Keys absent from the file keep their defaults.
//
//	settings, err := config.Load("/path/to/config.yaml")
//	if err != nil {
//	    // parse or validation error; a missing file is not an error
//	}
//
// # Saving Settings
//
//	settings.Quality = model.QualityExHigh
//	err := settings.Save("/path/to/config.json")
//
// # Credentials
//
// The session cookie is read from the cookie file on every request. Setting
// CLOUDMUSIC_COOKIE replaces the file with a fixed cookie string:
//
//	CLOUDMUSIC_COOKIE="MUSIC_U=..." cloudmusic-dl 186016
package config
