package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/natsukashi/hibiki/internal/config"
	"github.com/natsukashi/hibiki/internal/node"
	"github.com/natsukashi/hibiki/internal/repository"
	"github.com/natsukashi/hibiki/internal/session"
)

type Bot struct {
	cfg  *config.Config
	repo *repository.Repo
	node *node.Client
}

func NewBot(cfg *config.Config, repo *repository.Repo, nodeClient *node.Client) *Bot {
	return &Bot{cfg: cfg, repo: repo, node: nodeClient}
}

func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	reg := session.NewRegistry(session.Deps{
		Node:   b.node,
		Voice:  &discordVoice{s: dg},
		Notify: &discordNotifier{s: dg, farewellTTL: b.cfg.FarewellDisplay()},
		Store:  b.repo,

		IdleWait: b.cfg.IdleDisconnect(),
	})
	bridge := session.NewBridge(reg)
	recovery := session.NewRecoveryService(b.repo, reg)
	cmd := NewCommandHandler(b.cfg, b.repo, reg)

	b.node.SetPositionFunc(func(guildID string, positionMS int64) {
		if s := reg.Peek(guildID); s != nil {
			s.SetPosition(context.Background(), positionMS)
		}
	})

	// On ready: register commands, connect the audio node, replay persisted
	// sessions, then start taking commands.
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username)
		appID := s.State.User.ID

		if b.cfg.BotActivity != "" {
			if err := s.UpdateListeningStatus(b.cfg.BotActivity); err != nil {
				slog.Debug("set presence failed", "err", err)
			}
		}

		if b.cfg.RegisterCommandsOnBot {
			if err := cmd.RegisterCommands(s, appID, ""); err != nil {
				slog.Error("register global commands", "err", err)
			} else {
				slog.Info("registered global application commands")
			}
		} else {
			var wg sync.WaitGroup
			for _, g := range s.State.Guilds {
				wg.Add(1)
				go func(guildID string) {
					defer wg.Done()
					if err := cmd.RegisterCommands(s, appID, guildID); err != nil {
						slog.Error("register guild commands", "guild", guildID, "err", err)
					}
				}(g.ID)
			}
			wg.Wait()

			if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
				slog.Error("clear global commands", "err", err)
			}
			slog.Info("registered commands on all guilds")
		}

		go func() {
			if err := b.node.Open(appID); err != nil {
				slog.Error("audio node connect failed", "err", err)
				return
			}
			go bridge.Run(ctx, b.node.Events())

			if err := recovery.Run(ctx); err != nil {
				slog.Error("session recovery failed", "err", err)
			}
			cmd.SetReady()
			slog.Info("recovery complete, accepting commands")
		}()
	})

	// If registering per-guild, register on new guilds too.
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.RegisterCommandsOnBot {
			return
		}
		appID := s.State.User.ID
		if err := cmd.RegisterCommands(s, appID, g.ID); err != nil {
			slog.Error("register guild commands on join", "guild", g.ID, "err", err)
		} else {
			slog.Info("registered commands on new guild", "guild", g.ID)
		}
	})

	dg.AddHandler(cmd.HandleInteraction)

	// The audio node needs the bot's own voice session and the voice server
	// token to stand up its UDP connection.
	dg.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if vs.UserID != s.State.User.ID {
			return
		}
		if err := b.node.VoiceState(vs.GuildID, vs.SessionID); err != nil {
			slog.Debug("forward voice state failed", "guildID", vs.GuildID, "err", err)
		}
	})
	dg.AddHandler(func(s *discordgo.Session, vsrv *discordgo.VoiceServerUpdate) {
		if err := b.node.VoiceServer(vsrv.GuildID, vsrv); err != nil {
			slog.Debug("forward voice server failed", "guildID", vsrv.GuildID, "err", err)
		}
	})

	// Kicked or guild deleted: drop everything for that guild.
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildDelete) {
		if g.Unavailable {
			return
		}
		slog.Info("removed from guild, dropping state", "guildID", g.ID)
		reg.Remove(g.ID)
		cctx := context.Background()
		if err := b.repo.DeleteQueueState(cctx, g.ID); err != nil {
			slog.Warn("delete queue state failed", "guildID", g.ID, "err", err)
		}
		if err := b.repo.DeleteSettings(cctx, g.ID); err != nil {
			slog.Warn("delete settings failed", "guildID", g.ID, "err", err)
		}
	})

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()
	defer b.node.Close()

	<-ctx.Done()
	return nil
}
