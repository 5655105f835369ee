// Package audio provides audio file manipulation services including
// metadata embedding and playlist generation.
//
// # Metadata Embedding
//
// Use the Embedder to write tags, cover art and lyrics into a finished file:
//
//	embedder := audio.NewEmbedder(audio.DefaultTagConfig(), 500, logger)
//	err := embedder.Embed(ctx, path, model.Metadata{
//	    Title:  "晴天",
//	    Artist: "周杰伦",
//	    Album:  "叶惠美",
//	    Cover:  coverBytes,
//	    Lyrics: lrc,
//	})
//
// The embedder supports:
//   - MP3 through ID3v2 frames (title, artist, album artist, album, lyrics,
//     attached picture)
//   - FLAC through Vorbis comments and a PICTURE metadata block
//
// The container is detected from the file content. Tagging happens on a
// temporary copy that replaces the original only on success. Other
// containers are reported as ErrUnsupportedFormat, never skipped silently.
//
// # Playlist Generation
//
// Generate playlists for the files finished in a batch:
//
//	creator := audio.NewPlaylistCreator(audio.FormatM3U, true) // extended M3U
//	err := creator.Write("/music/batch.m3u", "batch", entries)
//
// Supported formats:
//   - M3U (with optional extended info)
//   - PLS
//   - WPL (Windows Media Player)
//   - ZPL (Zune Media Player)
package audio
