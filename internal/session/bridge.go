package session

import (
	"context"
	"log/slog"

	"github.com/natsukashi/hibiki/internal/node"
)

// Bridge translates audio-node events into session mutations. Events for a
// guild with no live session are dropped.
type Bridge struct {
	reg *Registry
}

func NewBridge(reg *Registry) *Bridge { return &Bridge{reg: reg} }

// Run consumes the node event stream until it closes.
func (b *Bridge) Run(ctx context.Context, events <-chan node.Event) {
	for ev := range events {
		b.Handle(ctx, ev)
	}
}

func (b *Bridge) Handle(ctx context.Context, ev node.Event) {
	s := b.reg.Peek(ev.EventGuildID())
	if s == nil {
		slog.Debug("event for unknown guild", "guildID", ev.EventGuildID())
		return
	}

	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	switch e := ev.(type) {
	case node.TrackStarted:
		s.handleTrackStarted(ctx, e.Track)
	case node.TrackEnded:
		s.handleTrackEnded(ctx)
	case node.QueueEmptied:
		s.handleQueueEmptied()
	default:
		slog.Warn("unhandled event kind", "guildID", ev.EventGuildID())
	}
}

func (s *Session) handleTrackStarted(ctx context.Context, t node.Track) {
	s.mu.Lock()
	s.cancelIdleLocked()
	if s.current == nil || s.current.Encoded != t.Encoded {
		// Node reports a track we did not set (e.g. after recovery); adopt it.
		tr := trackFromNode(t, "")
		s.current = &tr
	}
	s.positionMS = 0
	notifyCh := s.notifyChannelID
	cur := *s.current
	st := s.queueStateLocked()
	s.mu.Unlock()

	if notifyCh != "" {
		msgID, err := s.deps.Notify.NowPlaying(notifyCh, cur)
		if err != nil {
			slog.Warn("now-playing message failed", "guildID", s.guildID, "err", err)
		} else {
			s.mu.Lock()
			s.nowPlayingMsg = msgID
			s.mu.Unlock()
		}
	}

	if st != nil {
		if err := s.deps.Store.SaveQueueState(ctx, st); err != nil {
			slog.Warn("persist queue state failed", "guildID", s.guildID, "err", err)
		}
	}
}

func (s *Session) handleTrackEnded(ctx context.Context) {
	s.mu.Lock()
	msgID := s.nowPlayingMsg
	s.nowPlayingMsg = ""
	notifyCh := s.notifyChannelID

	var next *Track
	if len(s.queue) > 0 {
		n := s.queue[0]
		s.queue = s.queue[1:]
		s.current = &n
		next = &n
	} else {
		s.current = nil
	}
	s.positionMS = 0
	s.mu.Unlock()

	if msgID != "" && notifyCh != "" {
		if err := s.deps.Notify.DeleteMessage(notifyCh, msgID); err != nil {
			slog.Debug("delete now-playing failed", "guildID", s.guildID, "err", err)
		}
	}

	if next != nil {
		if err := s.deps.Node.Play(s.guildID, next.Encoded); err != nil {
			slog.Error("advance play failed", "guildID", s.guildID, "err", err)
			s.mu.Lock()
			s.current = nil
			s.mu.Unlock()
		}
		return
	}

	// Queue drained; the recovery row is stale now.
	if err := s.deps.Store.DeleteQueueState(ctx, s.guildID); err != nil {
		slog.Warn("delete queue state failed", "guildID", s.guildID, "err", err)
	}
	s.handleQueueEmptied()
}

func (s *Session) handleQueueEmptied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil || s.state != Connected {
		return
	}
	s.armIdleLocked()
}
