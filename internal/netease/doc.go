// Package netease is the catalog adapter for NetEase Cloud Music.
//
// The package covers the three calls the downloader needs:
//
//  1. Resolving a playable URL for a track at a quality tier
//  2. Looking up song details (title, artists, album, cover)
//  3. Fetching LRC lyrics
//
// # Resolving Sources
//
// The player URL endpoint is an "eapi" call: the JSON payload is signed with
// an MD5 digest, encrypted with AES-128-ECB and sent hex encoded as the
// "params" form field. Client.GetSource hides this and maps the response to
// model.Source:
//
//	client := netease.NewClient(pool, netease.Options{Logger: logger})
//	src, err := client.GetSource(ctx, "186016", model.QualityLossless)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(src.Quality, src.Format, src.Size)
//
// The response carries the granted level, which can be lower than the one
// asked for when the account lacks the entitlement.
//
// # Errors
//
// Response codes are mapped onto the engine's error taxonomy:
//
//	code 200          success
//	empty url         model.ErrNotFound
//	403, -460, -462   model.ErrForbidden
//	301               auth.ErrExpired (the MUSIC_U cookie is no longer valid)
//
// # Response Format
//
// Responses are decoded with gjson paths rather than full structs since only
// a handful of fields are used from large documents:
//
//	data.0.url, data.0.level, data.0.size, data.0.type   player url
//	songs.#.name, songs.#.ar.#.name, songs.#.al.name     song detail
//	lrc.lyric                                            lyrics
package netease
