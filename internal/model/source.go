package model

import "errors"

var (
	// ErrNotFound is returned by a catalog or metadata provider when it has
	// nothing for the requested track (or tier).
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the catalog refuses a tier, typically
	// because the account lacks the entitlement or the link expired.
	ErrForbidden = errors.New("forbidden")
)

// Source is a playable location resolved by the catalog.
type Source struct {
	// URL is the direct download location.
	URL string

	// Size is the expected byte size; zero or negative when unknown.
	Size int64

	// Quality is the tier actually granted, which may be lower than asked.
	Quality Quality

	// Format is the container reported by the catalog ("flac", "mp3").
	// Empty when the catalog did not say.
	Format string
}

// Extension returns the file extension, including the dot, for the source.
func (s Source) Extension() string {
	switch s.Format {
	case "flac":
		return ".flac"
	case "mp3":
		return ".mp3"
	}
	return s.Quality.DefaultExtension()
}

// Metadata holds the fields embedded into a finished file.
type Metadata struct {
	Title  string
	Artist string
	Album  string

	// Cover is encoded image bytes (JPEG or PNG); nil when unavailable.
	Cover []byte

	// Lyrics is plain or LRC text; empty when unavailable.
	Lyrics string
}
