package node

// Load types returned by the node's loadtracks endpoint.
const (
	LoadTypeTrack    = "TRACK_LOADED"
	LoadTypePlaylist = "PLAYLIST_LOADED"
	LoadTypeSearch   = "SEARCH_RESULT"
	LoadTypeNoMatch  = "NO_MATCHES"
	LoadTypeFailed   = "LOAD_FAILED"
)

const (
	MinVolume = 0
	MaxVolume = 150
)

type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	SourceName string `json:"sourceName"`
}

type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type LoadResult struct {
	LoadType     string         `json:"loadType"`
	PlaylistInfo *PlaylistInfo  `json:"playlistInfo"`
	Tracks       []Track        `json:"tracks"`
	Exception    *LoadException `json:"exception"`
}
