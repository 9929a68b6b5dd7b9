package session

import (
	"context"
	"log/slog"
	"time"
)

// armIdleLocked schedules the auto-disconnect. Arming while a timer is
// outstanding replaces the prior handle; there is never more than one live
// timer per session. Caller holds mu.
func (s *Session) armIdleLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	wait := s.deps.IdleWait
	if s.idleWaitSet {
		if s.idleWait == 0 {
			// Guild configured to never auto-disconnect.
			s.idleTimer = nil
			return
		}
		wait = s.idleWait
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	s.idleTimer = time.AfterFunc(wait, s.idleFired)
}

// cancelIdleLocked is a no-op when no timer is armed. Caller holds mu.
func (s *Session) cancelIdleLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Session) idleFired() {
	s.mu.Lock()
	// Playback may have resumed during the wait; the timer loses that race.
	if s.current != nil || s.state != Connected {
		s.idleTimer = nil
		s.mu.Unlock()
		return
	}
	s.idleTimer = nil
	s.state = Disconnected
	s.voiceChannelID = ""
	notifyCh := s.notifyChannelID
	s.mu.Unlock()

	slog.Info("idle timeout, disconnecting", "guildID", s.guildID)

	if err := s.deps.Voice.Leave(s.guildID); err != nil {
		slog.Warn("idle disconnect failed", "guildID", s.guildID, "err", err)
	}
	_ = s.deps.Node.Destroy(s.guildID)
	if err := s.deps.Store.DeleteQueueState(context.Background(), s.guildID); err != nil {
		slog.Warn("delete queue state failed", "guildID", s.guildID, "err", err)
	}

	if notifyCh != "" {
		if err := s.deps.Notify.Farewell(notifyCh); err != nil {
			slog.Warn("farewell message failed", "guildID", s.guildID, "err", err)
		}
	}
}
