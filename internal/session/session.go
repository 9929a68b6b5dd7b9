// Package session holds the per-guild voice playback state machine: joining
// and leaving voice channels, the track queue, notification bookkeeping,
// idle-timeout auto-disconnect and startup recovery of in-flight playback.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/natsukashi/hibiki/internal/node"
	"github.com/natsukashi/hibiki/internal/repository"
)

// Session is the per-guild state machine. All field mutation happens under mu;
// node event handlers are additionally serialized end to end by handleMu so
// their side effects (messages, play calls) cannot interleave for one guild.
type Session struct {
	guildID string
	deps    Deps

	handleMu sync.Mutex

	mu              sync.Mutex
	state           ConnectionState
	voiceChannelID  string
	notifyChannelID string
	queue           []Track
	current         *Track
	positionMS      int64
	nowPlayingMsg   string
	idleTimer       *time.Timer
	idleWait        time.Duration
	idleWaitSet     bool
}

func newSession(guildID string, deps Deps) *Session {
	return &Session{guildID: guildID, deps: deps, state: Disconnected}
}

func (s *Session) GuildID() string { return s.guildID }

// EnsureJoined verifies the requesting user shares a voice channel with the
// bot, connecting or moving first when allowConnect permits it. It must run
// before every voice-affecting command; only play passes allowConnect=true.
func (s *Session) EnsureJoined(userID string, allowConnect bool) error {
	userCh, ok := s.deps.Voice.UserChannel(s.guildID, userID)
	if !ok {
		return ErrNoUserChannel
	}

	s.mu.Lock()
	switch s.state {
	case Disconnected:
		if !allowConnect {
			s.mu.Unlock()
			return ErrJoinNotPermitted
		}
		if !s.deps.Voice.CanConnectSpeak(s.guildID, userCh) {
			s.mu.Unlock()
			return ErrInsufficientPermissions
		}
		s.state = Connecting
		s.mu.Unlock()

		if err := s.deps.Voice.Join(s.guildID, userCh); err != nil {
			s.mu.Lock()
			s.state = Disconnected
			s.mu.Unlock()
			return &TransportError{Op: "connect", Err: err}
		}

		s.mu.Lock()
		s.state = Connected
		s.voiceChannelID = userCh
		s.mu.Unlock()
		return nil

	case Connecting:
		s.mu.Unlock()
		return &TransportError{Op: "connect", Err: fmt.Errorf("connection already in progress")}

	default: // Connected
		if s.voiceChannelID == userCh {
			s.mu.Unlock()
			return nil
		}
		if !allowConnect {
			s.mu.Unlock()
			return ErrChannelMismatch
		}
		s.mu.Unlock()

		if err := s.deps.Voice.Join(s.guildID, userCh); err != nil {
			return &TransportError{Op: "move", Err: err}
		}
		s.mu.Lock()
		s.voiceChannelID = userCh
		s.mu.Unlock()
		return nil
	}
}

// EnqueueResult describes what a single enqueue call appended.
type EnqueueResult struct {
	Tracks       []Track
	PlaylistName string
	Started      bool
}

// Enqueue resolves a query through the audio node and appends the outcome to
// the queue. Playback starts only when nothing is currently playing; issuing
// a play call while a track runs would skip it, so that never happens here.
func (s *Session) Enqueue(ctx context.Context, query, requesterID, textChannelID string) (*EnqueueResult, error) {
	res, err := s.deps.Node.Resolve(ctx, query)
	if err != nil {
		return nil, &ResolveError{Query: query, Reason: err.Error()}
	}

	var tracks []Track
	var playlistName string
	switch {
	case res.LoadType == node.LoadTypeFailed:
		reason := "unknown failure"
		if res.Exception != nil {
			reason = res.Exception.Message
		}
		return nil, &ResolveError{Query: query, Reason: reason}
	case res.LoadType == node.LoadTypeNoMatch || len(res.Tracks) == 0:
		return nil, &ResolveError{Query: query, NoMatches: true}
	case res.LoadType == node.LoadTypePlaylist:
		for _, t := range res.Tracks {
			tracks = append(tracks, trackFromNode(t, requesterID))
		}
		if res.PlaylistInfo != nil {
			playlistName = res.PlaylistInfo.Name
		}
	default: // single track or search result: take the first
		tracks = []Track{trackFromNode(res.Tracks[0], requesterID)}
	}

	s.mu.Lock()
	// Last enqueuer's channel wins for future now-playing notifications.
	s.notifyChannelID = textChannelID
	s.queue = append(s.queue, tracks...)

	started := false
	var head Track
	if s.current == nil {
		head = s.queue[0]
		s.queue = s.queue[1:]
		s.current = &head
		s.positionMS = 0
		started = true
	}
	st := s.queueStateLocked()
	s.mu.Unlock()

	if started {
		if err := s.deps.Node.Play(s.guildID, head.Encoded); err != nil {
			s.mu.Lock()
			s.current = nil
			s.queue = append([]Track{head}, s.queue...)
			s.mu.Unlock()
			return nil, fmt.Errorf("play call: %w", err)
		}
	}

	if st != nil {
		if err := s.deps.Store.SaveQueueState(ctx, st); err != nil {
			slog.Warn("persist queue state failed", "guildID", s.guildID, "err", err)
		}
	}

	return &EnqueueResult{Tracks: tracks, PlaylistName: playlistName, Started: started}, nil
}

func (s *Session) SetVolume(percent int) error {
	if percent < node.MinVolume || percent > node.MaxVolume {
		return fmt.Errorf("volume must be between %d and %d", node.MinVolume, node.MaxVolume)
	}
	return s.deps.Node.SetVolume(s.guildID, percent)
}

// Skip ends the current track; queue advancement happens when the node
// reports TrackEnded.
func (s *Session) Skip() error {
	s.mu.Lock()
	playing := s.current != nil
	s.mu.Unlock()
	if !playing {
		return fmt.Errorf("nothing is playing")
	}
	return s.deps.Node.Stop(s.guildID)
}

// Stop halts playback and clears the queue but stays in the voice channel.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()

	if err := s.deps.Node.Stop(s.guildID); err != nil {
		return err
	}
	if err := s.deps.Store.DeleteQueueState(ctx, s.guildID); err != nil {
		slog.Warn("delete queue state failed", "guildID", s.guildID, "err", err)
	}
	return nil
}

// Leave disconnects from voice, clears all playback state and drops the
// persisted recovery row.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	s.cancelIdleLocked()
	s.queue = nil
	s.current = nil
	s.positionMS = 0
	s.nowPlayingMsg = ""
	s.state = Disconnected
	s.voiceChannelID = ""
	s.mu.Unlock()

	_ = s.deps.Node.Stop(s.guildID)
	_ = s.deps.Node.Destroy(s.guildID)

	if err := s.deps.Store.DeleteQueueState(ctx, s.guildID); err != nil {
		slog.Warn("delete queue state failed", "guildID", s.guildID, "err", err)
	}
	if err := s.deps.Voice.Leave(s.guildID); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Current returns a copy of the playing track, the up-next track and the last
// reported position.
func (s *Session) Current() (current, next *Track, positionMS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		c := *s.current
		current = &c
	}
	if len(s.queue) > 0 {
		n := s.queue[0]
		next = &n
	}
	return current, next, s.positionMS
}

func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) VoiceChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceChannelID
}

// SetIdleWait overrides the process-wide idle grace period for this guild.
// Zero means never auto-disconnect.
func (s *Session) SetIdleWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleWait = d
	s.idleWaitSet = true
}

func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// SetPosition records a position report from the node and refreshes the
// persisted row so recovery resumes close to where playback died.
func (s *Session) SetPosition(ctx context.Context, positionMS int64) {
	s.mu.Lock()
	s.positionMS = positionMS
	playing := s.current != nil
	s.mu.Unlock()
	if playing {
		_ = s.deps.Store.UpdateQueuePosition(ctx, s.guildID, positionMS)
	}
}

// queueStateLocked snapshots the persistable state. Caller holds mu. Returns
// nil when nothing is playing (no row should exist then).
func (s *Session) queueStateLocked() *repository.QueueState {
	if s.current == nil {
		return nil
	}
	remaining := make([]string, 0, len(s.queue))
	for _, t := range s.queue {
		remaining = append(remaining, t.SourceURI)
	}
	return &repository.QueueState{
		GuildID:           s.guildID,
		TextChannelID:     s.notifyChannelID,
		VoiceChannelID:    s.voiceChannelID,
		CurrentTrackURI:   s.current.SourceURI,
		CurrentPositionMS: s.positionMS,
		RemainingQueue:    remaining,
	}
}
