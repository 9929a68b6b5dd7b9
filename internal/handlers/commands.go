package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/natsukashi/hibiki/internal/autocomplete"
	"github.com/natsukashi/hibiki/internal/config"
	"github.com/natsukashi/hibiki/internal/node"
	"github.com/natsukashi/hibiki/internal/repository"
	"github.com/natsukashi/hibiki/internal/session"
	"github.com/natsukashi/hibiki/internal/spotify"
	"github.com/natsukashi/hibiki/internal/ui"
	"github.com/natsukashi/hibiki/internal/utils"
)

const spotifyExpandLimit = 50

type CommandHandler struct {
	repo *repository.Repo
	reg  *session.Registry
	sp   *spotify.Client

	// ready flips once startup recovery finished; commands arriving earlier
	// are refused so they cannot race the replayed sessions.
	ready atomic.Bool
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, reg *session.Registry) *CommandHandler {
	h := &CommandHandler{repo: repo, reg: reg}
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		client, err := spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err == nil {
			h.sp = client
		} else {
			slog.Warn("spotify client init failed", "err", err)
		}
	}
	return h
}

func (h *CommandHandler) SetReady() { h.ready.Store(true) }

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	slog.Info("registering application commands", "appID", appID, "guildID", guildID)

	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song (URL or search query)",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "query or URL", Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
			},
		},
		{
			Name:        "volume",
			Description: "Set playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "level", Description: fmt.Sprintf("%d-%d", node.MinVolume, node.MaxVolume), Type: discordgo.ApplicationCommandOptionInteger, Required: true},
			},
		},
		{Name: "skip", Description: "Skip the current track"},
		{Name: "stop", Description: "Stop playback and clear queue"},
		{Name: "disconnect", Description: "Stop and leave the voice channel"},
		{Name: "now-playing", Description: "Show currently playing"},
		{
			Name:        "config",
			Description: "Configure bot settings",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "get", Description: "show settings"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-prefix", Description: "set message command prefix", Options: []*discordgo.ApplicationCommandOption{
					{Name: "prefix", Description: "prefix", Type: discordgo.ApplicationCommandOptionString, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-default-volume", Description: "volume applied when I join", Options: []*discordgo.ApplicationCommandOption{
					{Name: "level", Description: fmt.Sprintf("%d-%d", node.MinVolume, node.MaxVolume), Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-wait-after-queue-empties", Description: "time to wait before leaving VC", Options: []*discordgo.ApplicationCommandOption{
					{Name: "delay", Description: "seconds (0 never leave)", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
			},
		},
	}

	for _, c := range cmds {
		if _, err := s.ApplicationCommandCreate(appID, guildID, c); err != nil {
			slog.Error("failed to create application command", "guildID", guildID, "command", c.Name, "err", err)
			return err
		}
		slog.Debug("registered command", "guildID", guildID, "command", c.Name)
	}

	slog.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "play" {
		return
	}

	var query string
	for _, opt := range data.Options {
		if opt.Focused {
			query = opt.StringValue()
			break
		}
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}
	if strings.TrimSpace(query) == "" {
		_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionApplicationCommandAutocompleteResult,
			Data: &discordgo.InteractionResponseData{Choices: []*discordgo.ApplicationCommandOptionChoice{}},
		})
		return
	}

	choices, err := autocomplete.GetSuggestions(context.Background(), query, h.sp, 10)
	if err != nil {
		slog.Warn("autocomplete suggestions error", "guildID", i.GuildID, "err", err)
	}
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		h.reply(s, i, "music commands only work in a server", true)
		return
	}
	if !h.ready.Load() {
		h.reply(s, i, "still starting up, try again in a moment", true)
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "play":
		h.cmdPlay(s, i)
	case "volume":
		h.cmdVolume(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "stop":
		h.cmdStop(s, i)
	case "disconnect":
		h.cmdDisconnect(s, i)
	case "now-playing":
		h.cmdNowPlaying(s, i)
	case "config":
		h.cmdConfig(s, i)
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

// ensureVoice runs the shared-channel precondition for every voice-affecting
// command. Only play is allowed to establish or move the connection.
func (h *CommandHandler) ensureVoice(s *discordgo.Session, i *discordgo.InteractionCreate, allowConnect bool) (*session.Session, bool) {
	sess := h.reg.GetOrCreate(i.GuildID)
	if err := sess.EnsureJoined(userIDOf(i), allowConnect); err != nil {
		slog.Debug("voice precondition failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
		h.reply(s, i, userMessage(err), true)
		return nil, false
	}
	return sess, true
}

// userMessage turns session errors into something worth showing in chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNoUserChannel),
		errors.Is(err, session.ErrJoinNotPermitted),
		errors.Is(err, session.ErrChannelMismatch),
		errors.Is(err, session.ErrInsufficientPermissions):
		return err.Error()
	}
	var re *session.ResolveError
	if errors.As(err, &re) {
		return re.Error()
	}
	var te *session.TransportError
	if errors.As(err, &te) {
		return "couldn't set up the voice connection, try again"
	}
	return "internal error"
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var query string
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "query" {
			query = o.StringValue()
		}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		h.reply(s, i, "give me something to play", true)
		return
	}
	slog.Info("cmd play", "guildID", i.GuildID, "userID", userIDOf(i), "query", query)

	ctx := context.Background()
	set, err := h.repo.UpsertSettings(ctx, i.GuildID)
	if err != nil {
		slog.Error("upsert settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "internal error", true)
		return
	}

	sess := h.reg.GetOrCreate(i.GuildID)
	sess.SetIdleWait(time.Duration(set.SecondsWaitAfterEmpty) * time.Second)
	wasDisconnected := sess.State() == session.Disconnected

	if err := sess.EnsureJoined(userIDOf(i), true); err != nil {
		slog.Debug("voice precondition failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
		h.reply(s, i, userMessage(err), true)
		return
	}
	if wasDisconnected {
		if err := sess.SetVolume(set.DefaultVolume); err != nil {
			slog.Debug("apply default volume failed", "guildID", i.GuildID, "err", err)
		}
	}

	// Resolving can be slow (node REST plus possibly Spotify), so defer.
	h.deferReply(s, i, false)

	if spotify.IsSpotifyQuery(query) {
		h.playSpotify(s, i, sess, query)
		return
	}

	res, err := sess.Enqueue(ctx, query, userIDOf(i), i.ChannelID)
	if err != nil {
		slog.Debug("enqueue failed", "guildID", i.GuildID, "query", query, "err", err)
		h.editReply(s, i, userMessage(err))
		return
	}

	if res.PlaylistName != "" {
		h.editReplyEmbed(s, i, ui.QueuedPlaylistEmbed(res.PlaylistName, len(res.Tracks)))
		return
	}
	h.editReplyEmbed(s, i, ui.QueuedTrackEmbed(res.Tracks[0]))
}

// playSpotify expands an album/playlist/track reference into search terms and
// enqueues each one individually; the node has no Spotify source of its own.
func (h *CommandHandler) playSpotify(s *discordgo.Session, i *discordgo.InteractionCreate, sess *session.Session, query string) {
	if h.sp == nil {
		h.editReply(s, i, "spotify support is not configured")
		return
	}
	ctx := context.Background()

	terms, meta, err := h.sp.Expand(ctx, query, spotifyExpandLimit)
	if err != nil {
		slog.Debug("spotify expand failed", "guildID", i.GuildID, "query", query, "err", err)
		h.editReply(s, i, "couldn't read that spotify link")
		return
	}
	if len(terms) == 0 {
		h.editReply(s, i, "that spotify link has no playable tracks")
		return
	}

	added := 0
	var firstRes *session.EnqueueResult
	for _, t := range terms {
		res, err := sess.Enqueue(ctx, t.SearchTerm(), userIDOf(i), i.ChannelID)
		if err != nil {
			slog.Debug("spotify track enqueue failed", "guildID", i.GuildID, "term", t.SearchTerm(), "err", err)
			continue
		}
		if firstRes == nil {
			firstRes = res
		}
		added++
	}
	if added == 0 {
		h.editReply(s, i, "none of those tracks could be found")
		return
	}

	if meta != nil {
		h.editReplyEmbed(s, i, ui.QueuedPlaylistEmbed(meta.Title, added))
		return
	}
	h.editReplyEmbed(s, i, ui.QueuedTrackEmbed(firstRes.Tracks[0]))
}

func (h *CommandHandler) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var level int
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "level" {
			level = int(o.IntValue())
		}
	}
	sess, ok := h.ensureVoice(s, i, false)
	if !ok {
		return
	}
	if err := sess.SetVolume(level); err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd volume", "guildID", i.GuildID, "userID", userIDOf(i), "level", level)
	h.reply(s, i, fmt.Sprintf("volume set to %d%%", level), false)
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess, ok := h.ensureVoice(s, i, false)
	if !ok {
		return
	}
	cur, _, _ := sess.Current()
	if err := sess.Skip(); err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd skip", "guildID", i.GuildID, "userID", userIDOf(i))
	if cur != nil {
		h.reply(s, i, fmt.Sprintf("skipped %s", utils.EscapeMd(cur.Title)), false)
	} else {
		h.reply(s, i, "skipped", false)
	}
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess, ok := h.ensureVoice(s, i, false)
	if !ok {
		return
	}
	if err := sess.Stop(context.Background()); err != nil {
		slog.Warn("stop failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, userMessage(err), true)
		return
	}
	slog.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "stopped playback and cleared the queue", false)
}

func (h *CommandHandler) cmdDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess, ok := h.ensureVoice(s, i, false)
	if !ok {
		return
	}
	if err := sess.Leave(context.Background()); err != nil {
		slog.Warn("disconnect failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, userMessage(err), true)
		return
	}
	slog.Info("cmd disconnect", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "see you 👋", false)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess, ok := h.ensureVoice(s, i, false)
	if !ok {
		return
	}
	cur, next, pos := sess.Current()
	slog.Debug("cmd now-playing", "guildID", i.GuildID, "userID", userIDOf(i))
	h.replyEmbed(s, i, ui.NowPlayingStatusEmbed(cur, next, pos))
}

func (h *CommandHandler) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.repo.UpsertSettings(ctx, i.GuildID)
	if err != nil {
		slog.Error("upsert settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to fetch config", true)
		return
	}

	sub := i.ApplicationCommandData().Options[0]
	switch sub.Name {
	case "get":
		wait := "never leave"
		if set.SecondsWaitAfterEmpty > 0 {
			wait = fmt.Sprintf("%ds", set.SecondsWaitAfterEmpty)
		}
		msg := fmt.Sprintf(
			"Config\n- Prefix: %s\n- Default volume: %d\n- Wait before leaving after queue empty: %s",
			set.Prefix, set.DefaultVolume, wait,
		)
		slog.Debug("config get", "guildID", i.GuildID)
		h.reply(s, i, msg, false)
	case "set-prefix":
		prefix := sub.Options[0].StringValue()
		if prefix == "" {
			h.reply(s, i, "prefix cannot be empty", true)
			return
		}
		set.Prefix = prefix
		if err := h.repo.UpdateSettings(ctx, set); err != nil {
			slog.Warn("update settings failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to update config", true)
			return
		}
		slog.Info("config updated", "guildID", i.GuildID, "key", "Prefix", "value", prefix)
		h.reply(s, i, "👍 prefix updated", false)
	case "set-default-volume":
		level := int(sub.Options[0].IntValue())
		if level < node.MinVolume || level > node.MaxVolume {
			h.reply(s, i, fmt.Sprintf("volume must be between %d and %d", node.MinVolume, node.MaxVolume), true)
			return
		}
		set.DefaultVolume = level
		if err := h.repo.UpdateSettings(ctx, set); err != nil {
			slog.Warn("update settings failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to update config", true)
			return
		}
		slog.Info("config updated", "guildID", i.GuildID, "key", "DefaultVolume", "value", level)
		h.reply(s, i, "👍 default volume updated", false)
	case "set-wait-after-queue-empties":
		delay := int(sub.Options[0].IntValue())
		if delay < 0 {
			h.reply(s, i, "delay cannot be negative", true)
			return
		}
		set.SecondsWaitAfterEmpty = delay
		if err := h.repo.UpdateSettings(ctx, set); err != nil {
			slog.Warn("update settings failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to update config", true)
			return
		}
		if sess := h.reg.Peek(i.GuildID); sess != nil {
			sess.SetIdleWait(time.Duration(delay) * time.Second)
		}
		slog.Info("config updated", "guildID", i.GuildID, "key", "SecondsWaitAfterEmpty", "value", delay)
		h.reply(s, i, "👍 wait delay updated", false)
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}); err != nil {
		slog.Warn("embed reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: flags,
		},
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReplyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}); err != nil {
		slog.Warn("edit embed reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil || i.Member == nil || i.Member.User == nil {
		return ""
	}
	return i.Member.User.ID
}
