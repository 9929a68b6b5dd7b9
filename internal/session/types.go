package session

import (
	"context"
	"time"

	"github.com/natsukashi/hibiki/internal/node"
	"github.com/natsukashi/hibiki/internal/repository"
)

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Track is one playable item. Immutable once enqueued.
type Track struct {
	Encoded     string
	SourceURI   string
	Title       string
	Author      string
	LengthMS    int64
	IsStream    bool
	RequesterID string
}

func trackFromNode(t node.Track, requesterID string) Track {
	return Track{
		Encoded:     t.Encoded,
		SourceURI:   t.Info.URI,
		Title:       t.Info.Title,
		Author:      t.Info.Author,
		LengthMS:    t.Info.Length,
		IsStream:    t.Info.IsStream,
		RequesterID: requesterID,
	}
}

// NodeAPI is the slice of the audio-node client the session layer drives.
type NodeAPI interface {
	Resolve(ctx context.Context, query string) (*node.LoadResult, error)
	Play(guildID, encoded string) error
	Stop(guildID string) error
	SetVolume(guildID string, percent int) error
	Seek(guildID string, positionMS int64) error
	Destroy(guildID string) error
}

// VoiceTransport joins, moves and leaves voice channels and answers
// membership/permission queries against the chat platform.
type VoiceTransport interface {
	Join(guildID, channelID string) error
	Leave(guildID string) error
	UserChannel(guildID, userID string) (channelID string, ok bool)
	CanConnectSpeak(guildID, channelID string) bool
}

// Notifier posts and deletes the short status messages the session owns.
type Notifier interface {
	NowPlaying(channelID string, t Track) (messageID string, err error)
	DeleteMessage(channelID, messageID string) error
	Farewell(channelID string) error
}

// StateStore persists in-flight queue rows for crash recovery.
type StateStore interface {
	SaveQueueState(ctx context.Context, q *repository.QueueState) error
	UpdateQueuePosition(ctx context.Context, guild string, positionMS int64) error
	DeleteQueueState(ctx context.Context, guild string) error
	ListQueueStates(ctx context.Context) ([]repository.QueueState, error)
}

// Deps carries the injected collaborators shared by every session.
type Deps struct {
	Node     NodeAPI
	Voice    VoiceTransport
	Notify   Notifier
	Store    StateStore
	IdleWait time.Duration
}
