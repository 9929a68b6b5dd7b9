package autocomplete

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/bwmarrin/discordgo"
	"github.com/natsukashi/hibiki/internal/spotify"
)

func GetYouTubeSuggestions(ctx context.Context, query string) ([]string, error) {
	u, _ := url.Parse("https://suggestqueries.google.com/complete/search")
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetSuggestions merges YouTube suggest results with Spotify track matches
// into autocomplete choices for /play. sp may be nil.
func GetSuggestions(ctx context.Context, query string, sp *spotify.Client, limit int) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	if limit <= 0 {
		limit = 10
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	seen := make(map[string]bool)
	add := func(label, value string) {
		if len(choices) >= limit || value == "" || seen[value] {
			return
		}
		seen[value] = true
		if len(label) > 100 {
			label = label[:100]
		}
		if len(value) > 100 {
			value = value[:100]
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: label, Value: value})
	}

	yt, err := GetYouTubeSuggestions(ctx, query)
	for _, s := range yt {
		add(s, s)
	}

	if sp != nil {
		tracks, spErr := sp.SearchTracks(ctx, query, limit/2)
		if spErr == nil {
			for _, t := range tracks {
				term := t.SearchTerm()
				add("♪ "+term, term)
			}
		} else if err == nil {
			err = spErr
		}
	}

	if len(choices) > 0 {
		return choices, nil
	}
	return choices, err
}
