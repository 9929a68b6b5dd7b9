package node

// Event is the closed set of playback events the node reports back.
// Consumers dispatch with a type switch over the three concrete kinds.
type Event interface {
	EventGuildID() string
	isEvent()
}

type TrackStarted struct {
	GuildID string
	Track   Track
}

type TrackEnded struct {
	GuildID string
	Track   Track
	Reason  string
}

type QueueEmptied struct {
	GuildID string
}

func (e TrackStarted) EventGuildID() string { return e.GuildID }
func (e TrackEnded) EventGuildID() string   { return e.GuildID }
func (e QueueEmptied) EventGuildID() string { return e.GuildID }

func (TrackStarted) isEvent() {}
func (TrackEnded) isEvent()   {}
func (QueueEmptied) isEvent() {}
