package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natsukashi/hibiki/internal/session"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "", ProgressBar(0, 0.5))

	bar := ProgressBar(10, 0)
	assert.True(t, strings.HasPrefix(bar, "🔘"))

	bar = ProgressBar(10, 1)
	assert.True(t, strings.HasSuffix(bar, "🔘"))
	assert.Equal(t, 1, strings.Count(bar, "🔘"))

	// out-of-range progress is clamped
	assert.Equal(t, ProgressBar(10, 0), ProgressBar(10, -3))
	assert.Equal(t, ProgressBar(10, 1), ProgressBar(10, 42))
}

func TestNowPlayingStatusEmbedIdle(t *testing.T) {
	embed := NowPlayingStatusEmbed(nil, nil, 0)
	assert.Equal(t, "Nothing Playing", embed.Title)
}

func TestNowPlayingStatusEmbedWithTrack(t *testing.T) {
	cur := &session.Track{Title: "Song *One*", Author: "Artist", SourceURI: "https://example.com/1", LengthMS: 200000, RequesterID: "u1"}
	next := &session.Track{Title: "Two", Author: "Other", SourceURI: "https://example.com/2"}

	embed := NowPlayingStatusEmbed(cur, next, 100000)
	assert.Contains(t, embed.Description, "Song \\*One\\*")
	assert.Contains(t, embed.Description, "1:40/3:20")
	require.Len(t, embed.Fields, 1)
	assert.Contains(t, embed.Fields[0].Value, "Two")
	require.NotNil(t, embed.Footer)
}

func TestNowPlayingStatusEmbedStream(t *testing.T) {
	cur := &session.Track{Title: "Radio", Author: "Station", IsStream: true}
	embed := NowPlayingStatusEmbed(cur, nil, 123)
	assert.Contains(t, embed.Description, "live")
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "No more songs in queue", embed.Fields[0].Value)
}
