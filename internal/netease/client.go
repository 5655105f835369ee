package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/handiism/cloudmusic-downloader/internal/http"
	"github.com/handiism/cloudmusic-downloader/internal/model"
	"github.com/tidwall/gjson"
)

const (
	// DefaultAPIBase is the host serving the eapi and api endpoints.
	DefaultAPIBase = "https://interface3.music.163.com"

	// DefaultWebBase is the web player host sent as Referer.
	DefaultWebBase = "https://music.163.com"

	playerURLPath  = "/eapi/song/enhance/player/url/v1"
	songDetailPath = "/api/v3/song/detail"
	lyricPath      = "/api/song/lyric"

	// detailBatchSize is the number of ids the detail endpoint accepts at once.
	detailBatchSize = 100

	deviceID = "pyncm!"
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	APIBase string
	WebBase string
	Logger  *slog.Logger
}

// Client talks to the NetEase Cloud Music API.
//
// Client implements both download.CatalogClient and
// download.MetadataProvider. Every request goes through the shared
// http.Pool, so catalog calls and audio transfers draw from the same
// connection leases and carry the same credentials.
//
// Example usage:
//
//	pool := http.NewPool(http.Options{Credentials: auth.NewCookieFile("cookie.txt")})
//	client := netease.NewClient(pool, netease.Options{})
//
//	src, err := client.GetSource(ctx, "186016", model.QualityLossless)
//	if errors.Is(err, model.ErrNotFound) {
//	    // try a lower tier
//	}
type Client struct {
	pool    *http.Pool
	apiBase string
	webBase string
	logger  *slog.Logger
}

// NewClient creates a Client on top of pool.
func NewClient(pool *http.Pool, opts Options) *Client {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.WebBase == "" {
		opts.WebBase = DefaultWebBase
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		pool:    pool,
		apiBase: strings.TrimRight(opts.APIBase, "/"),
		webBase: strings.TrimRight(opts.WebBase, "/"),
		logger:  opts.Logger,
	}
}

type playerPayload struct {
	IDs         []int64 `json:"ids"`
	Level       string  `json:"level"`
	EncodeType  string  `json:"encodeType"`
	Header      string  `json:"header"`
	ImmerseType string  `json:"immerseType,omitempty"`
}

// GetSource resolves the download URL of trackID at quality.
//
// The granted tier is read from the response and may be lower than asked.
// An empty URL returns model.ErrNotFound, a refused tier
// model.ErrForbidden and a rejected session auth.ErrExpired.
func (c *Client) GetSource(ctx context.Context, trackID string, quality model.Quality) (model.Source, error) {
	id, err := strconv.ParseInt(trackID, 10, 64)
	if err != nil {
		return model.Source{}, fmt.Errorf("%w: invalid track id %q", model.ErrNotFound, trackID)
	}

	header, _ := json.Marshal(map[string]string{
		"os":        "pc",
		"appver":    "",
		"osver":     "",
		"deviceId":  deviceID,
		"requestId": strconv.Itoa(rand.IntN(10000000) + 20000000),
	})
	payload := playerPayload{
		IDs:        []int64{id},
		Level:      quality.String(),
		EncodeType: "flac",
		Header:     string(header),
	}
	if quality == model.QualitySky {
		payload.ImmerseType = "c51"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Source{}, err
	}

	form := url.Values{"params": {eapiParams(apiPath(playerURLPath), data)}}
	body, err := c.post(ctx, c.apiBase+playerURLPath, form)
	if err != nil {
		return model.Source{}, err
	}

	src, err := parseSource(body, quality)
	if err != nil {
		return model.Source{}, err
	}
	c.logger.Debug("resolved player url", "track", trackID, "asked", quality, "granted", src.Quality, "type", src.Format)
	return src, nil
}

// GetMetadata returns the tags of trackID: names from the song detail,
// the album cover and the LRC lyrics. Missing cover or lyrics are not an
// error; a missing song is model.ErrNotFound.
func (c *Client) GetMetadata(ctx context.Context, trackID string) (model.Metadata, error) {
	songs, err := c.Songs(ctx, []string{trackID})
	if err != nil {
		return model.Metadata{}, err
	}
	if len(songs) == 0 {
		return model.Metadata{}, fmt.Errorf("%w: song %s", model.ErrNotFound, trackID)
	}
	song := songs[0]

	meta := model.Metadata{
		Title:  song.Name,
		Artist: song.Artist(),
		Album:  song.Album,
	}

	if song.CoverURL != "" {
		cover, err := c.pool.Get(ctx, song.CoverURL)
		if err != nil {
			if ctx.Err() != nil {
				return model.Metadata{}, ctx.Err()
			}
			c.logger.Warn("downloading cover", "track", trackID, "error", err)
		}
		meta.Cover = cover
	}

	lyrics, err := c.Lyrics(ctx, trackID)
	if err != nil {
		if ctx.Err() != nil {
			return model.Metadata{}, ctx.Err()
		}
		c.logger.Debug("fetching lyrics", "track", trackID, "error", err)
	}
	meta.Lyrics = lyrics
	return meta, nil
}

// Songs looks up the details of ids, 100 per request, in order.
// Unknown ids are left out of the result.
func (c *Client) Songs(ctx context.Context, ids []string) ([]Song, error) {
	var songs []Song
	for start := 0; start < len(ids); start += detailBatchSize {
		batch := ids[start:min(start+detailBatchSize, len(ids))]

		refs := make([]string, 0, len(batch))
		for _, id := range batch {
			if _, err := strconv.ParseInt(id, 10, 64); err != nil {
				return nil, fmt.Errorf("invalid song id %q", id)
			}
			refs = append(refs, fmt.Sprintf(`{"id":%s,"v":0}`, id))
		}

		form := url.Values{"c": {"[" + strings.Join(refs, ",") + "]"}}
		body, err := c.post(ctx, c.apiBase+songDetailPath, form)
		if err != nil {
			return nil, fmt.Errorf("song detail: %w", err)
		}
		found, err := parseSongs(body)
		if err != nil {
			return nil, fmt.Errorf("song detail: %w", err)
		}
		songs = append(songs, found...)

		c.logger.Debug("fetched song details", "batch", start/detailBatchSize+1, "asked", len(batch), "found", len(found))
	}
	return songs, nil
}

// Lyrics returns the LRC lyrics of trackID, or "" when it has none.
func (c *Client) Lyrics(ctx context.Context, trackID string) (string, error) {
	form := url.Values{"id": {trackID}, "cp": {"false"}}
	for _, k := range []string{"tv", "lv", "rv", "kv", "yv", "ytv", "yrv"} {
		form.Set(k, "0")
	}

	body, err := c.post(ctx, c.apiBase+lyricPath, form)
	if err != nil {
		return "", err
	}
	if err := checkCode(body); err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "lrc.lyric").String(), nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	header := nethttp.Header{
		"Referer": {c.webBase + "/"},
		"Cookie":  {"os=pc; appver=; osver=; deviceId=" + deviceID},
	}
	return c.pool.PostForm(ctx, endpoint, form, header)
}
