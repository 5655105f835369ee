package model

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	ioutils "github.com/handiism/cloudmusic-downloader/internal/io"
)

// Naming presets for FileNameFormat. Templates never include the extension:
// it is decided once the catalog has told us which container it serves.
const (
	NamingTitleFirst         = "{title} - {artist}"
	NamingArtistFirst        = "{artist} - {title}"
	NamingTitleFirstQuality  = "{title} - {artist} [{quality}]"
	NamingArtistFirstQuality = "{artist} - {title} [{quality}]"
)

// AlbumDirectory is a Dir suffix that files each track under its album.
const AlbumDirectory = "{album}"

// Directory names used when a Dir placeholder has no value.
const (
	UnknownAlbum  = "Unknown Album"
	UnknownArtist = "Unknown Artist"
)

// maxPathLength keeps generated paths under the Windows MAX_PATH limit.
const maxPathLength = 260

// TrackRequest describes one track to fetch.
//
// A TrackRequest is immutable once it has been enqueued. Title, Artist and
// Album are hints supplied by the caller (usually from a catalog listing) and
// are only used to build the destination file name; embedded tags come from
// the metadata provider.
//
// Example:
//
//	req := TrackRequest{
//	    TrackID:        "1901371647",
//	    Quality:        QualityLossless,
//	    Dir:            "/music",
//	    FileNameFormat: NamingArtistFirst,
//	    Title:          "Song",
//	    Artist:         "Singer",
//	}
//	req.PathStem() // "/music/Singer - Song"
type TrackRequest struct {
	// TrackID is the catalog identifier of the track.
	TrackID string

	// Quality is the highest tier the caller wants.
	Quality Quality

	// Dir is the destination directory. It may contain {album} and
	// {artist} placeholders, see Directory.
	Dir string

	// FileNameFormat is the file name template without extension.
	// Supported placeholders: {title}, {artist}, {album}, {id}, {quality}.
	FileNameFormat string

	Title  string
	Artist string
	Album  string
}

// FileStem renders the file name template, without extension.
//
// The result is sanitized for use as a single path element. When the template
// renders to nothing usable the track id is used instead so that two distinct
// tracks never collapse onto an empty name.
func (r TrackRequest) FileStem() string {
	format := r.FileNameFormat
	if format == "" {
		format = NamingTitleFirst
	}

	name := format
	name = strings.ReplaceAll(name, "{title}", r.Title)
	name = strings.ReplaceAll(name, "{artist}", r.Artist)
	name = strings.ReplaceAll(name, "{album}", r.Album)
	name = strings.ReplaceAll(name, "{id}", r.TrackID)
	name = strings.ReplaceAll(name, "{quality}", r.Quality.Label())
	name = ioutils.SanitizeFileName(name)

	if strings.Trim(name, " -_[]") == "" {
		name = ioutils.SanitizeFileName(r.TrackID)
	}
	return name
}

// Directory returns Dir with its {album} and {artist} placeholders
// replaced by the sanitized hints.
//
//	TrackRequest{Dir: "/music/{album}", Album: "叶惠美"}.Directory() // "/music/叶惠美"
func (r TrackRequest) Directory() string {
	if !strings.Contains(r.Dir, "{") {
		return r.Dir
	}
	album := ioutils.SanitizeFileName(r.Album)
	if album == "" {
		album = UnknownAlbum
	}
	artist := ioutils.SanitizeFileName(r.Artist)
	if artist == "" {
		artist = UnknownArtist
	}
	dir := strings.ReplaceAll(r.Dir, "{album}", album)
	dir = strings.ReplaceAll(dir, "{artist}", artist)
	return filepath.Clean(dir)
}

// PathStem returns the destination path without extension.
//
// Names too long for the path limit are cut at a character boundary.
func (r TrackRequest) PathStem() string {
	dir := r.Directory()
	name := r.FileStem()
	stem := filepath.Join(dir, name)

	// Leave room for the longest extension we produce (".flac").
	if len(stem)+len(".flac") >= maxPathLength {
		keep := maxPathLength - len(".flac") - 1 - len(filepath.Clean(dir)) - 1
		if keep > 0 && keep < len(name) {
			for keep > 0 && !utf8.RuneStart(name[keep]) {
				keep--
			}
			stem = filepath.Join(dir, strings.TrimRight(name[:keep], " ."))
		}
	}
	return stem
}

// Path returns the destination path for the given extension (with dot).
func (r TrackRequest) Path(ext string) string {
	return r.PathStem() + ext
}

// UsesQualityInName reports whether the file name template embeds the tier.
func (r TrackRequest) UsesQualityInName() bool {
	return strings.Contains(r.FileNameFormat, "{quality}")
}

var orderSwap = strings.NewReplacer("{title}", "{artist}", "{artist}", "{title}")

// SwappedOrder returns r with {title} and {artist} exchanged in the naming
// template, so "Song - Singer" becomes "Singer - Song". It reports false
// when the template lacks one of the two.
func (r TrackRequest) SwappedOrder() (TrackRequest, bool) {
	format := r.FileNameFormat
	if format == "" {
		format = NamingTitleFirst
	}
	if !strings.Contains(format, "{title}") || !strings.Contains(format, "{artist}") {
		return r, false
	}
	r.FileNameFormat = orderSwap.Replace(format)
	return r, true
}

var qualitySuffix = regexp.MustCompile(`\s*\[[^\]]+\]\s*$`)

// StripQualitySuffix removes a trailing "[label]" from a file stem.
//
//	StripQualitySuffix("Song - Singer [无损]") // "Song - Singer"
func StripQualitySuffix(stem string) string {
	return qualitySuffix.ReplaceAllString(stem, "")
}
