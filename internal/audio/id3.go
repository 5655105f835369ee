package audio

import (
	"github.com/bogem/id3v2"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// writeID3 writes ID3v2 frames into an MP3 file.
func writeID3(path string, cfg *TagConfig, meta model.Metadata, cover []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if cfg.ModifyTags {
		updateID3Text(tag, cfg, meta)
	}

	if cover != nil {
		// Remove any existing cover pictures
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     cover,
		})
	}

	return tag.Save()
}

func updateID3Text(tag *id3v2.Tag, cfg *TagConfig, meta model.Metadata) {
	// Title (TIT2)
	switch cfg.Title {
	case TagEmpty:
		tag.SetTitle("")
	case TagModify:
		tag.SetTitle(meta.Title)
	}

	// Artist (TPE1)
	switch cfg.Artist {
	case TagEmpty:
		tag.SetArtist("")
	case TagModify:
		tag.SetArtist(meta.Artist)
	}

	// Album Artist (TPE2)
	switch cfg.AlbumArtist {
	case TagEmpty:
		tag.DeleteFrames("TPE2")
	case TagModify:
		tag.DeleteFrames("TPE2")
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, meta.Artist)
	}

	// Album (TALB)
	switch cfg.Album {
	case TagEmpty:
		tag.SetAlbum("")
	case TagModify:
		tag.SetAlbum(meta.Album)
	}

	// Lyrics (USLT)
	lyricsID := tag.CommonID("Unsynchronised lyrics/text transcription")
	switch cfg.Lyrics {
	case TagEmpty:
		tag.DeleteFrames(lyricsID)
	case TagModify:
		if meta.Lyrics != "" {
			tag.DeleteFrames(lyricsID)
			tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
				Encoding:          id3v2.EncodingUTF8,
				Language:          "chi",
				ContentDescriptor: "",
				Lyrics:            meta.Lyrics,
			})
		}
	}

	// Comments (COMM)
	if cfg.Comments == TagEmpty {
		tag.DeleteFrames(tag.CommonID("Comments"))
	}
}
