package handlers

import (
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/natsukashi/hibiki/internal/session"
	"github.com/natsukashi/hibiki/internal/ui"
)

// discordVoice adapts the gateway's voice operations to what the session layer
// needs. Joining with an empty channel ID disconnects.
type discordVoice struct {
	s *discordgo.Session
}

func (v *discordVoice) Join(guildID, channelID string) error {
	return v.s.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

func (v *discordVoice) Leave(guildID string) error {
	return v.s.ChannelVoiceJoinManual(guildID, "", false, true)
}

func (v *discordVoice) UserChannel(guildID, userID string) (string, bool) {
	g, _ := v.s.State.Guild(guildID)
	if g == nil {
		g, _ = v.s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func (v *discordVoice) CanConnectSpeak(guildID, channelID string) bool {
	perms, err := v.s.State.UserChannelPermissions(v.s.State.User.ID, channelID)
	if err != nil {
		slog.Debug("permission lookup failed", "guildID", guildID, "channelID", channelID, "err", err)
		return false
	}
	need := int64(discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak)
	return perms&need == need
}

// discordNotifier posts the session-owned status messages.
type discordNotifier struct {
	s           *discordgo.Session
	farewellTTL time.Duration
}

func (n *discordNotifier) NowPlaying(channelID string, t session.Track) (string, error) {
	msg, err := n.s.ChannelMessageSendEmbed(channelID, ui.NowPlayingEmbed(t))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (n *discordNotifier) DeleteMessage(channelID, messageID string) error {
	return n.s.ChannelMessageDelete(channelID, messageID)
}

func (n *discordNotifier) Farewell(channelID string) error {
	msg, err := n.s.ChannelMessageSendEmbed(channelID, ui.FarewellEmbed())
	if err != nil {
		return err
	}
	if n.farewellTTL > 0 {
		msgID := msg.ID
		time.AfterFunc(n.farewellTTL, func() {
			if err := n.s.ChannelMessageDelete(channelID, msgID); err != nil {
				slog.Debug("farewell cleanup failed", "channelID", channelID, "err", err)
			}
		})
	}
	return nil
}
