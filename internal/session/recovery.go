package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/natsukashi/hibiki/internal/repository"
)

// RecoveryService reconstructs sessions from persisted queue rows on process
// start, before any command is accepted.
type RecoveryService struct {
	store StateStore
	reg   *Registry
}

func NewRecoveryService(store StateStore, reg *Registry) *RecoveryService {
	return &RecoveryService{store: store, reg: reg}
}

func (r *RecoveryService) Run(ctx context.Context) error {
	rows, err := r.store.ListQueueStates(ctx)
	if err != nil {
		return fmt.Errorf("list queue states: %w", err)
	}

	for i := range rows {
		row := &rows[i]
		// Delete first: a crash mid-recovery must not replay this guild twice.
		if err := r.store.DeleteQueueState(ctx, row.GuildID); err != nil {
			slog.Error("recovery row delete failed, skipping guild", "guildID", row.GuildID, "err", err)
			continue
		}
		s := r.reg.GetOrCreate(row.GuildID)
		if err := s.Restore(ctx, row); err != nil {
			slog.Error("session recovery failed", "guildID", row.GuildID, "err", err)
			continue
		}
		slog.Info("recovered playback session", "guildID", row.GuildID, "queued", len(row.RemainingQueue))
	}
	return nil
}

// Restore reconnects to the stored voice channel, resumes the current track at
// its last known position and re-enqueues the remaining queue. A queued track
// that no longer resolves is skipped, not fatal.
func (s *Session) Restore(ctx context.Context, st *repository.QueueState) error {
	s.mu.Lock()
	s.state = Connecting
	s.notifyChannelID = st.TextChannelID
	s.mu.Unlock()

	if err := s.deps.Voice.Join(s.guildID, st.VoiceChannelID); err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return &TransportError{Op: "reconnect", Err: err}
	}

	s.mu.Lock()
	s.state = Connected
	s.voiceChannelID = st.VoiceChannelID
	s.mu.Unlock()

	res, err := s.deps.Node.Resolve(ctx, st.CurrentTrackURI)
	if err != nil {
		return &ResolveError{Query: st.CurrentTrackURI, Reason: err.Error()}
	}
	if len(res.Tracks) == 0 {
		return &ResolveError{Query: st.CurrentTrackURI, NoMatches: true}
	}
	cur := trackFromNode(res.Tracks[0], "")

	s.mu.Lock()
	s.current = &cur
	s.positionMS = st.CurrentPositionMS
	s.mu.Unlock()

	if err := s.deps.Node.Play(s.guildID, cur.Encoded); err != nil {
		return fmt.Errorf("resume play: %w", err)
	}
	if st.CurrentPositionMS > 0 {
		if err := s.deps.Node.Seek(s.guildID, st.CurrentPositionMS); err != nil {
			slog.Warn("resume seek failed", "guildID", s.guildID, "err", err)
		}
	}

	for _, uri := range st.RemainingQueue {
		r, err := s.deps.Node.Resolve(ctx, uri)
		if err != nil || len(r.Tracks) == 0 {
			slog.Warn("skipping unresolvable queued track", "guildID", s.guildID, "uri", uri, "err", err)
			continue
		}
		t := trackFromNode(r.Tracks[0], "")
		s.mu.Lock()
		s.queue = append(s.queue, t)
		s.mu.Unlock()
	}

	s.mu.Lock()
	fresh := s.queueStateLocked()
	s.mu.Unlock()
	if fresh != nil {
		if err := s.deps.Store.SaveQueueState(ctx, fresh); err != nil {
			slog.Warn("persist recovered queue failed", "guildID", s.guildID, "err", err)
		}
	}
	return nil
}
