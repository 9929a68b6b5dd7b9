package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natsukashi/hibiki/internal/repository"
)

func TestRecoveryResumesPlayback(t *testing.T) {
	f := newFixture(t)
	f.node.results["u-current"] = singleTrack("e-cur", "u-current", "Current")
	f.node.results["u-next"] = singleTrack("e-next", "u-next", "Next")
	require.NoError(t, f.store.SaveQueueState(context.Background(), &repository.QueueState{
		GuildID:           "guild-1",
		TextChannelID:     "text-1",
		VoiceChannelID:    "vc-1",
		CurrentTrackURI:   "u-current",
		CurrentPositionMS: 30000,
		RemainingQueue:    []string{"u-next"},
	}))

	svc := NewRecoveryService(f.store, f.reg)
	require.NoError(t, svc.Run(context.Background()))

	sess := f.reg.Peek("guild-1")
	require.NotNil(t, sess)
	assert.Equal(t, Connected, sess.State())
	assert.Equal(t, "vc-1", sess.VoiceChannelID())
	assert.Equal(t, []string{"e-cur"}, f.node.plays())
	assert.Equal(t, []int64{30000}, f.node.seekCalls)
	assert.Equal(t, 1, sess.QueueLen())

	// A fresh row replaces the consumed one.
	row, ok := f.store.row("guild-1")
	require.True(t, ok)
	assert.Equal(t, "u-current", row.CurrentTrackURI)
	assert.Equal(t, []string{"u-next"}, row.RemainingQueue)
}

func TestRecoverySkipsUnresolvableQueuedTracks(t *testing.T) {
	f := newFixture(t)
	f.node.results["u-current"] = singleTrack("e-cur", "u-current", "Current")
	f.node.results["u-ok"] = singleTrack("e-ok", "u-ok", "Still There")
	require.NoError(t, f.store.SaveQueueState(context.Background(), &repository.QueueState{
		GuildID:         "guild-1",
		VoiceChannelID:  "vc-1",
		CurrentTrackURI: "u-current",
		RemainingQueue:  []string{"u-gone", "u-ok"},
	}))

	svc := NewRecoveryService(f.store, f.reg)
	require.NoError(t, svc.Run(context.Background()))

	sess := f.reg.Peek("guild-1")
	require.NotNil(t, sess)
	assert.Equal(t, 1, sess.QueueLen(), "dead link is skipped, the rest survives")
}

func TestRecoveryConsumesRowEvenOnFailure(t *testing.T) {
	f := newFixture(t)
	f.voice.joinErr = errors.New("voice gateway down")
	require.NoError(t, f.store.SaveQueueState(context.Background(), &repository.QueueState{
		GuildID:         "guild-1",
		VoiceChannelID:  "vc-1",
		CurrentTrackURI: "u-current",
	}))

	svc := NewRecoveryService(f.store, f.reg)
	require.NoError(t, svc.Run(context.Background()))

	// At-most-once: the row is gone, a second start must not replay it.
	_, ok := f.store.row("guild-1")
	assert.False(t, ok)

	rows, err := f.store.ListQueueStates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecoveryNoSeekAtZeroPosition(t *testing.T) {
	f := newFixture(t)
	f.node.results["u-current"] = singleTrack("e-cur", "u-current", "Current")
	require.NoError(t, f.store.SaveQueueState(context.Background(), &repository.QueueState{
		GuildID:         "guild-1",
		VoiceChannelID:  "vc-1",
		CurrentTrackURI: "u-current",
	}))

	svc := NewRecoveryService(f.store, f.reg)
	require.NoError(t, svc.Run(context.Background()))
	assert.Empty(t, f.node.seekCalls)
}
