// Last.fm API implementation of [EventSource] and [MetadataProvider]
//
// Response types based on https://www.last.fm/api (API 2.0, format=json)
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/relisten/internal/shared"
)

const (
	lastfmBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// LastFMSource names the provider in checkpoints and provenance URLs.
	LastFMSource = "lastfm"

	// Last.fm numeric error codes that mean "no such record".
	lfErrInvalidParams = 6
)

// lfText is the {"mbid": ..., "#text": ...} shape Last.fm uses for
// embedded artist/album references.
type lfText struct {
	MBID string `json:"mbid"`
	Name string `json:"#text"`
}

// RecentTrack is one entry of the user.getRecentTracks feed.
type RecentTrack struct {
	Artist lfText  `json:"artist"`
	Album  lfText  `json:"album"`
	MBID   string  `json:"mbid"`
	Name   string  `json:"name"`
	URL    string  `json:"url"`
	Date   *lfDate `json:"date"`
	Attr   *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

type lfDate struct {
	UTS string `json:"uts"`
}

// Timestamp returns the listen time as Unix seconds, or 0 for an
// in-flight ("now playing") entry.
func (t RecentTrack) Timestamp() int64 {
	if t.Date == nil {
		return 0
	}
	ts, err := strconv.ParseInt(t.Date.UTS, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// NowPlaying reports whether the entry is still in flight.
func (t RecentTrack) NowPlaying() bool {
	return t.Attr != nil && t.Attr.NowPlaying == "true"
}

// RecentTracksPage is one page of listening history plus pagination
// metadata.
type RecentTracksPage struct {
	Tracks     []RecentTrack
	Page       int
	TotalPages int
}

// HasMore reports whether another page follows this one.
func (p *RecentTracksPage) HasMore() bool {
	return p.Page < p.TotalPages
}

// trackList tolerates Last.fm's habit of returning a bare object instead
// of a one-element array when a page holds a single track.
type trackList []RecentTrack

func (l *trackList) UnmarshalJSON(data []byte) error {
	var many []RecentTrack
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}

	var one RecentTrack
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = []RecentTrack{one}
	return nil
}

type recentTracksEnvelope struct {
	RecentTracks struct {
		Track trackList `json:"track"`
		Attr  struct {
			Page       string `json:"page"`
			TotalPages string `json:"totalPages"`
		} `json:"@attr"`
	} `json:"recenttracks"`
}

// ArtistInfo is the artist.getInfo metadata snapshot.
type ArtistInfo struct {
	Name    string
	MBID    string
	URL     string
	Bio     string
	Tags    []string
	Similar []string
}

type artistInfoEnvelope struct {
	Artist struct {
		Name string `json:"name"`
		MBID string `json:"mbid"`
		URL  string `json:"url"`
		Bio  struct {
			Summary string `json:"summary"`
		} `json:"bio"`
		Tags struct {
			Tag []struct {
				Name string `json:"name"`
			} `json:"tag"`
		} `json:"tags"`
		Similar struct {
			Artist []struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"similar"`
	} `json:"artist"`
}

// Correction is the artist.getCorrection "did you mean" result.
type Correction struct {
	Name string
	MBID string
}

type correctionEnvelope struct {
	Corrections struct {
		Correction struct {
			Artist struct {
				Name string `json:"name"`
				MBID string `json:"mbid"`
			} `json:"artist"`
		} `json:"correction"`
	} `json:"corrections"`
}

// AlbumInfo is the album.getInfo metadata snapshot.
type AlbumInfo struct {
	Name   string
	MBID   string
	Artist string
	URL    string
	Year   int
}

type albumInfoEnvelope struct {
	Album struct {
		Name   string `json:"name"`
		MBID   string `json:"mbid"`
		Artist string `json:"artist"`
		URL    string `json:"url"`
		Wiki   struct {
			Published string `json:"published"`
		} `json:"wiki"`
	} `json:"album"`
}

// TrackInfo is the track.getInfo metadata snapshot.
type TrackInfo struct {
	Name   string
	MBID   string
	URL    string
	Artist string
	Album  string
}

type trackInfoEnvelope struct {
	Track struct {
		Name   string `json:"name"`
		MBID   string `json:"mbid"`
		URL    string `json:"url"`
		Artist struct {
			Name string `json:"name"`
			MBID string `json:"mbid"`
		} `json:"artist"`
		Album struct {
			Title string `json:"title"`
			MBID  string `json:"mbid"`
		} `json:"album"`
	} `json:"track"`
}

// apiError is the {"error": N, "message": ...} body Last.fm returns with
// HTTP 200 on logical failures.
type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// LastFM implements [EventSource] and [MetadataProvider] against the
// Last.fm API. It uses two rate-limited clients sharing one limiter: the
// feed client's cache expires in minutes, the reference client's in days.
type LastFM struct {
	apiKey  string
	baseURL string
	feed    *Client
	ref     *Client
}

// NewLastFM creates a Last.fm client. The API key is required; feed and
// ref must share a limiter (see [Client.Limiter]) so the provider's
// minimum interval holds across both.
func NewLastFM(apiKey string, feed, ref *Client) (*LastFM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: lastfm api key", shared.ErrMissingCredentials)
	}
	if feed == nil || ref == nil {
		return nil, fmt.Errorf("%w: lastfm requires feed and reference clients", shared.ErrInvalidInput)
	}

	return &LastFM{
		apiKey:  apiKey,
		baseURL: lastfmBaseURL,
		feed:    feed,
		ref:     ref,
	}, nil
}

// SetBaseURL points the client at a different endpoint. Used by tests.
func (l *LastFM) SetBaseURL(u string) {
	l.baseURL = u
}

func (l *LastFM) Name() string {
	return LastFMSource
}

// call issues one API method call through the given client and decodes
// the envelope, translating Last.fm logical errors into sentinels.
func (l *LastFM) call(ctx context.Context, c *Client, params url.Values, out any) error {
	params.Set("api_key", l.apiKey)
	params.Set("format", "json")

	body, err := c.Get(ctx, l.baseURL, params)
	if err != nil {
		return err
	}

	var apiErr apiError
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Code != 0 {
		if apiErr.Code == lfErrInvalidParams {
			return fmt.Errorf("%w: %s", shared.ErrNotFound, apiErr.Message)
		}
		return fmt.Errorf("%w: lastfm error %d: %s", shared.ErrAPIRequest, apiErr.Code, apiErr.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// RecentTracks fetches one page of the user's listening history starting
// at the Unix timestamp from.
func (l *LastFM) RecentTracks(ctx context.Context, user string, from int64, page, limit int) (*RecentTracksPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	if page <= 0 {
		page = 1
	}

	params := url.Values{}
	params.Set("method", "user.getrecenttracks")
	params.Set("user", user)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	if from > 0 {
		params.Set("from", strconv.FormatInt(from, 10))
	}

	var env recentTracksEnvelope
	if err := l.call(ctx, l.feed, params, &env); err != nil {
		return nil, err
	}

	result := &RecentTracksPage{
		Tracks: env.RecentTracks.Track,
		Page:   page,
	}
	if p, err := strconv.Atoi(env.RecentTracks.Attr.Page); err == nil {
		result.Page = p
	}
	if tp, err := strconv.Atoi(env.RecentTracks.Attr.TotalPages); err == nil {
		result.TotalPages = tp
	}

	return result, nil
}

// ArtistInfo fetches the full artist metadata snapshot by name or MBID.
func (l *LastFM) ArtistInfo(ctx context.Context, name, mbid string) (*ArtistInfo, error) {
	params := url.Values{}
	params.Set("method", "artist.getinfo")
	if mbid != "" {
		params.Set("mbid", mbid)
	} else {
		params.Set("artist", name)
	}

	var env artistInfoEnvelope
	if err := l.call(ctx, l.ref, params, &env); err != nil {
		return nil, err
	}
	if env.Artist.Name == "" {
		return nil, shared.ErrNotFound
	}

	info := &ArtistInfo{
		Name: env.Artist.Name,
		MBID: env.Artist.MBID,
		URL:  env.Artist.URL,
		Bio:  strings.TrimSpace(env.Artist.Bio.Summary),
	}
	for _, t := range env.Artist.Tags.Tag {
		info.Tags = append(info.Tags, t.Name)
	}
	for _, s := range env.Artist.Similar.Artist {
		info.Similar = append(info.Similar, s.Name)
	}

	return info, nil
}

// ArtistCorrection asks the provider for its canonical spelling of an
// artist name. A miss is reported as [shared.ErrNotFound].
func (l *LastFM) ArtistCorrection(ctx context.Context, name string) (*Correction, error) {
	params := url.Values{}
	params.Set("method", "artist.getcorrection")
	params.Set("artist", name)

	var env correctionEnvelope
	if err := l.call(ctx, l.ref, params, &env); err != nil {
		return nil, err
	}

	corrected := env.Corrections.Correction.Artist
	if corrected.Name == "" || strings.EqualFold(corrected.Name, name) {
		return nil, shared.ErrNotFound
	}

	return &Correction{Name: corrected.Name, MBID: corrected.MBID}, nil
}

// AlbumInfo fetches album metadata by artist and album name.
func (l *LastFM) AlbumInfo(ctx context.Context, artist, album string) (*AlbumInfo, error) {
	params := url.Values{}
	params.Set("method", "album.getinfo")
	params.Set("artist", artist)
	params.Set("album", album)

	var env albumInfoEnvelope
	if err := l.call(ctx, l.ref, params, &env); err != nil {
		return nil, err
	}
	if env.Album.Name == "" {
		return nil, shared.ErrNotFound
	}

	return &AlbumInfo{
		Name:   env.Album.Name,
		MBID:   env.Album.MBID,
		Artist: env.Album.Artist,
		URL:    env.Album.URL,
		Year:   publishedYear(env.Album.Wiki.Published),
	}, nil
}

// TrackInfo fetches track metadata by artist and track name.
func (l *LastFM) TrackInfo(ctx context.Context, artist, track string) (*TrackInfo, error) {
	params := url.Values{}
	params.Set("method", "track.getinfo")
	params.Set("artist", artist)
	params.Set("track", track)

	var env trackInfoEnvelope
	if err := l.call(ctx, l.ref, params, &env); err != nil {
		return nil, err
	}
	if env.Track.Name == "" {
		return nil, shared.ErrNotFound
	}

	return &TrackInfo{
		Name:   env.Track.Name,
		MBID:   env.Track.MBID,
		URL:    env.Track.URL,
		Artist: env.Track.Artist.Name,
		Album:  env.Track.Album.Title,
	}, nil
}

// publishedYear extracts the release year from a wiki "published" string
// like "07 Sep 2008, 21:43". Returns 0 when absent or unparsable.
func publishedYear(published string) int {
	fields := strings.Fields(published)
	for _, f := range fields {
		f = strings.TrimSuffix(f, ",")
		if len(f) == 4 {
			if y, err := strconv.Atoi(f); err == nil && y > 1000 && y < 3000 {
				return y
			}
		}
	}
	return 0
}
