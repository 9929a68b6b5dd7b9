package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type Settings struct {
	GuildID               string
	Prefix                string
	DefaultVolume         int
	SecondsWaitAfterEmpty int
}

// QueueState is one persisted in-flight playback row, written through during
// normal play and consumed exactly once during startup recovery.
type QueueState struct {
	GuildID           string
	TextChannelID     string
	VoiceChannelID    string
	CurrentTrackURI   string
	CurrentPositionMS int64
	RemainingQueue    []string // source URIs, playback order
}
