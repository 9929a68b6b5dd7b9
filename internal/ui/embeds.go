package ui

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/natsukashi/hibiki/internal/session"
	"github.com/natsukashi/hibiki/internal/utils"
)

func trackLink(t session.Track) string {
	if t.SourceURI == "" {
		return utils.EscapeMd(t.Title)
	}
	return fmt.Sprintf("[%s](%s)", utils.EscapeMd(t.Title), t.SourceURI)
}

func NowPlayingEmbed(t session.Track) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("**%s - %s**", utils.EscapeMd(t.Author), trackLink(t))
	if t.RequesterID != "" {
		desc += fmt.Sprintf("\nRequested by: <@%s>", t.RequesterID)
	}
	return &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: desc,
		Color:       0x92a8d1,
	}
}

// NowPlayingStatusEmbed is the richer /now-playing response with position and
// up-next info.
func NowPlayingStatusEmbed(current, next *session.Track, positionMS int64) *discordgo.MessageEmbed {
	if current == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "The queue is empty",
			Color:       0x992222,
		}
	}

	elapsed := "live"
	bar := ProgressBar(10, 0)
	if !current.IsStream && current.LengthMS > 0 {
		elapsed = fmt.Sprintf("%s/%s", utils.PrettyTimeMS(positionMS), utils.PrettyTimeMS(current.LengthMS))
		bar = ProgressBar(10, float64(positionMS)/float64(current.LengthMS))
	}

	upNext := "No more songs in queue"
	if next != nil {
		upNext = fmt.Sprintf("%s - %s", utils.EscapeMd(next.Author), trackLink(*next))
	}

	desc := fmt.Sprintf("**%s - %s**\n\n%s `[ %s ]`",
		utils.EscapeMd(current.Author), trackLink(*current), bar, elapsed)

	embed := &discordgo.MessageEmbed{
		Title:       "🎶 Now Playing",
		URL:         current.SourceURI,
		Description: desc,
		Color:       0x92a8d1,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Next In Queue", Value: upNext, Inline: false},
		},
	}
	if current.RequesterID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Requested by user %s", current.RequesterID),
		}
	}
	return embed
}

func QueuedTrackEmbed(t session.Track) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Added Track to Queue",
		Description: trackLink(t),
		Color:       0x006400,
	}
}

func QueuedPlaylistEmbed(name string, count int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Added Playlist to Queue",
		Description: fmt.Sprintf("%s - %d tracks", utils.EscapeMd(name), count),
		Color:       0x006400,
	}
}

func FarewellEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Disconnected",
		Description: "Nobody played anything for a while, so I left the voice channel.",
		Color:       0xff6f61,
	}
}

func ProgressBar(width int, progress float64) string {
	if width <= 0 {
		return ""
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	dot := int(float64(width) * progress)
	if dot >= width {
		dot = width - 1
	}
	out := make([]rune, 0, width*2)
	for i := 0; i < width; i++ {
		if i == dot {
			out = append(out, '🔘')
		} else {
			out = append(out, '▬')
		}
	}
	return string(out)
}
