package audio

import (
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// writeVorbis writes Vorbis comments and a front cover PICTURE block into a
// FLAC file.
func writeVorbis(path string, cfg *TagConfig, meta model.Metadata, cover []byte) error {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return err
	}

	var comments *flacvorbis.MetaDataBlockVorbisComment
	commentIndex := -1
	for idx, block := range f.Meta {
		if block.Type == goflac.VorbisComment {
			comments, err = flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return err
			}
			commentIndex = idx
			break
		}
	}
	if comments == nil {
		comments = flacvorbis.New()
	}

	if cfg.ModifyTags {
		setVorbis(comments, flacvorbis.FIELD_TITLE, cfg.Title, meta.Title)
		setVorbis(comments, flacvorbis.FIELD_ARTIST, cfg.Artist, meta.Artist)
		setVorbis(comments, "ALBUMARTIST", cfg.AlbumArtist, meta.Artist)
		setVorbis(comments, flacvorbis.FIELD_ALBUM, cfg.Album, meta.Album)
		if meta.Lyrics != "" || cfg.Lyrics == TagEmpty {
			setVorbis(comments, "LYRICS", cfg.Lyrics, meta.Lyrics)
		}
		setVorbis(comments, "COMMENT", cfg.Comments, "")
	}

	commentBlock := comments.Marshal()
	if commentIndex >= 0 {
		f.Meta[commentIndex] = &commentBlock
	} else {
		f.Meta = append(f.Meta, &commentBlock)
	}

	if cover != nil {
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Cover", cover, "image/jpeg")
		if err != nil {
			return err
		}
		pictureBlock := pic.Marshal()

		kept := f.Meta[:0]
		for _, block := range f.Meta {
			if block.Type != goflac.Picture {
				kept = append(kept, block)
			}
		}
		f.Meta = append(kept, &pictureBlock)
	}

	return f.Save(path)
}

// setVorbis applies action to every comment named key.
func setVorbis(c *flacvorbis.MetaDataBlockVorbisComment, key string, action TagEditAction, value string) {
	if action == TagDoNotModify {
		return
	}

	prefix := strings.ToUpper(key) + "="
	kept := c.Comments[:0]
	for _, comment := range c.Comments {
		if !strings.HasPrefix(strings.ToUpper(comment), prefix) {
			kept = append(kept, comment)
		}
	}
	c.Comments = kept

	if action == TagModify && value != "" {
		c.Add(key, value)
	}
}
