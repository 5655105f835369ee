package audio

// TagEditAction defines how to handle individual tag fields.
//
// Each field can be configured independently to determine whether
// it should be modified, cleared, or left unchanged.
type TagEditAction int

const (
	// TagEmpty clears the field.
	TagEmpty TagEditAction = iota

	// TagModify updates the field with the value from the metadata provider.
	TagModify

	// TagDoNotModify leaves the existing value unchanged.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each field. The same settings
// apply to ID3v2 frames and Vorbis comments.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags:  true,
//	    Title:       TagModify,
//	    Artist:      TagModify,
//	    Album:       TagModify,
//	    AlbumArtist: TagDoNotModify, // keep whatever the CDN shipped
//	    Lyrics:      TagModify,
//	    Comments:    TagEmpty,
//	}
type TagConfig struct {
	// ModifyTags is a master switch. If false, no text fields are modified;
	// cover art is still embedded.
	ModifyTags bool

	// Title controls TIT2 / TITLE.
	Title TagEditAction

	// Artist controls TPE1 / ARTIST.
	Artist TagEditAction

	// AlbumArtist controls TPE2 / ALBUMARTIST.
	AlbumArtist TagEditAction

	// Album controls TALB / ALBUM.
	Album TagEditAction

	// Lyrics controls USLT / LYRICS.
	Lyrics TagEditAction

	// Comments controls COMM / COMMENT.
	Comments TagEditAction
}

// DefaultTagConfig returns the default tag configuration.
//
// By default, all fields except comments are set to TagModify.
// Comments are cleared.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags:  true,
		Title:       TagModify,
		Artist:      TagModify,
		AlbumArtist: TagModify,
		Album:       TagModify,
		Lyrics:      TagModify,
		Comments:    TagEmpty,
	}
}
