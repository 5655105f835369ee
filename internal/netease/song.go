package netease

import (
	"fmt"
	"strings"

	"github.com/handiism/cloudmusic-downloader/internal/auth"
	"github.com/handiism/cloudmusic-downloader/internal/model"
	"github.com/tidwall/gjson"
)

// Song is a catalog entry as listed by the song detail endpoint.
type Song struct {
	ID       string
	Name     string
	Artists  []string
	Album    string
	CoverURL string
}

// Artist returns the artist names joined with "/".
func (s Song) Artist() string {
	return strings.Join(s.Artists, "/")
}

// Request builds a track request for the song, carrying its names as
// file name hints.
//
// Example:
//
//	req := song.Request(model.QualityLossless, "/music", model.NamingTitleFirst)
//	req.FileStem() // "晴天 - 周杰伦"
func (s Song) Request(quality model.Quality, dir, format string) model.TrackRequest {
	return model.TrackRequest{
		TrackID:        s.ID,
		Quality:        quality,
		Dir:            dir,
		FileNameFormat: format,
		Title:          s.Name,
		Artist:         s.Artist(),
		Album:          s.Album,
	}
}

// parseSongs reads the "songs" array of a song detail response.
func parseSongs(body []byte) ([]Song, error) {
	if err := checkCode(body); err != nil {
		return nil, err
	}

	var songs []Song
	gjson.GetBytes(body, "songs").ForEach(func(_, v gjson.Result) bool {
		song := Song{
			ID:       v.Get("id").String(),
			Name:     v.Get("name").String(),
			Album:    v.Get("al.name").String(),
			CoverURL: v.Get("al.picUrl").String(),
		}
		for _, ar := range v.Get("ar.#.name").Array() {
			song.Artists = append(song.Artists, ar.String())
		}
		songs = append(songs, song)
		return true
	})
	return songs, nil
}

// parseSource reads the first entry of a player url response.
func parseSource(body []byte, asked model.Quality) (model.Source, error) {
	if err := checkCode(body); err != nil {
		return model.Source{}, err
	}

	entry := gjson.GetBytes(body, "data.0")
	if !entry.Exists() || entry.Get("url").String() == "" {
		return model.Source{}, model.ErrNotFound
	}

	granted := asked
	if level := entry.Get("level").String(); level != "" {
		if q, err := model.ParseQuality(level); err == nil {
			granted = q
		}
	}
	return model.Source{
		URL:     entry.Get("url").String(),
		Size:    entry.Get("size").Int(),
		Quality: granted,
		Format:  strings.ToLower(entry.Get("type").String()),
	}, nil
}

// checkCode maps the "code" field of a response to the catalog errors.
func checkCode(body []byte) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("malformed response: %.64q", body)
	}
	code := gjson.GetBytes(body, "code")
	if !code.Exists() {
		return nil
	}
	switch code.Int() {
	case 200:
		return nil
	case 301:
		return fmt.Errorf("%w: code 301", auth.ErrExpired)
	case 403, -460, -462:
		return fmt.Errorf("%w: code %d", model.ErrForbidden, code.Int())
	case 404, 400:
		return fmt.Errorf("%w: code %d", model.ErrNotFound, code.Int())
	}
	return fmt.Errorf("unexpected response code %d: %s", code.Int(), gjson.GetBytes(body, "message").String())
}
