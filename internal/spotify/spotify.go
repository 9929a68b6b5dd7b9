// Package spotify expands Spotify URLs and URIs into search terms that the
// audio node can resolve. The node itself has no Spotify source, so albums,
// playlists and tracks are mapped to "title artist" searches.
package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

type Track struct {
	Name   string
	Artist string
}

// SearchTerm is the query handed to the audio node's search provider.
func (t Track) SearchTerm() string {
	return fmt.Sprintf("%s %s", t.Name, t.Artist)
}

type PlaylistMeta struct {
	Title  string
	Source string
}

type Client struct {
	raw *spotify.Client
}

func NewClientCredentials(clientID, clientSecret string) (*Client, error) {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(context.Background())
	return &Client{raw: spotify.New(httpClient, spotify.WithRetry(true))}, nil
}

// IsSpotifyQuery reports whether the query names a Spotify resource.
func IsSpotifyQuery(s string) bool {
	return strings.HasPrefix(s, "spotify:") || strings.Contains(s, "open.spotify.com")
}

func ParseID(raw string) (typ string, id spotify.ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("invalid spotify URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", fmt.Errorf("not a spotify URL")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	switch parts[0] {
	case "album", "playlist", "track":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type")
}

// Expand resolves a Spotify URL/URI to search terms, one per track, plus
// playlist metadata when the resource is a collection.
func (c *Client) Expand(ctx context.Context, raw string, limit int) ([]Track, *PlaylistMeta, error) {
	typ, id, err := ParseID(raw)
	if err != nil {
		return nil, nil, err
	}
	switch typ {
	case "album":
		return c.albumTracks(ctx, id, limit)
	case "playlist":
		return c.playlistTracks(ctx, id, limit)
	case "track":
		t, err := c.track(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return []Track{t}, nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported spotify type: %s", typ)
}

func (c *Client) albumTracks(ctx context.Context, id spotify.ID, limit int) ([]Track, *PlaylistMeta, error) {
	alb, err := c.raw.GetAlbum(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	page, err := c.raw.GetAlbumTracks(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Track, 0, page.Total)
	add := func(items []spotify.SimpleTrack) {
		for _, t := range items {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
		}
	}
	add(page.Tracks)
	for page.Next != "" && (limit == 0 || len(out) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Tracks)
	}
	return out, &PlaylistMeta{Title: alb.Name, Source: alb.ExternalURLs["spotify"]}, nil
}

func (c *Client) playlistTracks(ctx context.Context, id spotify.ID, limit int) ([]Track, *PlaylistMeta, error) {
	pl, err := c.raw.GetPlaylist(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	page, err := c.raw.GetPlaylistItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Track, 0, page.Total)
	add := func(items []spotify.PlaylistItem) {
		for _, it := range items {
			if it.Track.Track == nil {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			t := it.Track.Track
			out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
		}
	}
	add(page.Items)
	for page.Next != "" && (limit == 0 || len(out) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Items)
	}
	return out, &PlaylistMeta{Title: pl.Name, Source: pl.ExternalURLs["spotify"]}, nil
}

func (c *Client) track(ctx context.Context, id spotify.ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	return Track{Name: t.Name, Artist: firstArtist(t.Artists)}, nil
}

// SearchTracks backs the /play autocomplete.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeTrack)
	if err != nil {
		return nil, err
	}
	tracks := res.Tracks.Tracks
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
	}
	return out, nil
}

func firstArtist(a []spotify.SimpleArtist) string {
	if len(a) == 0 {
		return ""
	}
	return a[0].Name
}
