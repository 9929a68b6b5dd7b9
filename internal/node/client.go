// Package node implements the client side of the remote audio-node control
// protocol: track resolution over REST, playback control and the event stream
// over a websocket. The node owns decoding and audio transport; this client
// only issues control calls and surfaces events.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	Host         string
	Port         int
	Password     string
	Secure       bool
	SearchPrefix string // default search provider for non-URL queries
}

type Client struct {
	cfg  Config
	http *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	userID    string

	events chan Event
	done   chan struct{}

	// posFunc, when set before Open, receives playerUpdate positions.
	posFunc func(guildID string, positionMS int64)
}

func New(cfg Config) *Client {
	if cfg.SearchPrefix == "" {
		cfg.SearchPrefix = "ytsearch"
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Events is the stream of playback events. Closed when the client shuts down.
func (c *Client) Events() <-chan Event { return c.events }

// SetPositionFunc registers a callback for playerUpdate position reports.
// Must be called before Open.
func (c *Client) SetPositionFunc(fn func(guildID string, positionMS int64)) {
	c.posFunc = fn
}

// Open dials the node websocket and starts the read loop. userID is the bot's
// own user id, which the node requires for voice connection bookkeeping.
func (c *Client) Open(userID string) error {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	if err := c.dial(); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.connected = false
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Unblocks a read loop waiting to hand off an event; the loop closes the
	// events channel on its way out.
	close(c.done)
}

func (c *Client) dial() error {
	scheme := "ws"
	if c.cfg.Secure {
		scheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, c.cfg.Host, c.cfg.Port)

	headers := http.Header{}
	headers.Set("Authorization", c.cfg.Password)
	headers.Set("User-Id", c.userID)
	headers.Set("Client-Name", "hibiki/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, headers)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	slog.Info("connected to audio node", "host", c.cfg.Host, "port", c.cfg.Port)
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			closed = c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			slog.Warn("node websocket read failed, reconnecting", "err", err)
			c.reconnect()
			continue
		}
		c.handleMessage(message)
	}
}

func (c *Client) reconnect() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		time.Sleep(5 * time.Second)
		if err := c.dial(); err != nil {
			slog.Warn("node reconnect failed", "err", err)
			continue
		}
		return
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Op      string `json:"op"`
		Type    string `json:"type"`
		GuildID string `json:"guildId"`
		Reason  string `json:"reason"`
		Track   *Track `json:"track"`
		State   *struct {
			Position int64 `json:"position"`
		} `json:"state"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Debug("undecodable node message", "err", err)
		return
	}

	switch msg.Op {
	case "ready":
		slog.Info("audio node ready")
	case "playerUpdate":
		if c.posFunc != nil && msg.State != nil {
			c.posFunc(msg.GuildID, msg.State.Position)
		}
	case "event":
		c.handleEvent(msg.Type, msg.GuildID, msg.Reason, msg.Track)
	case "stats":
	}
}

func (c *Client) handleEvent(eventType, guildID, reason string, track *Track) {
	var ev Event
	switch eventType {
	case "TrackStartEvent":
		if track == nil {
			return
		}
		ev = TrackStarted{GuildID: guildID, Track: *track}
	case "TrackEndEvent":
		var t Track
		if track != nil {
			t = *track
		}
		ev = TrackEnded{GuildID: guildID, Track: t, Reason: reason}
	case "QueueEndEvent":
		ev = QueueEmptied{GuildID: guildID}
	case "TrackExceptionEvent":
		slog.Error("track exception", "guildID", guildID)
		return
	case "WebSocketClosedEvent":
		slog.Warn("node closed voice websocket", "guildID", guildID)
		return
	default:
		slog.Debug("unhandled node event", "type", eventType, "guildID", guildID)
		return
	}

	// Delivery must not drop: a lost TrackEnded strands the guild's queue and
	// a lost TrackStarted leaks the now-playing message. When the buffer is
	// full the read loop simply waits for the consumer to catch up.
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Resolve loads tracks for a query. Anything that is not an absolute http(s)
// URL is treated as a search term against the default provider.
func (c *Client) Resolve(ctx context.Context, query string) (*LoadResult, error) {
	identifier := query
	if !isURL(query) {
		identifier = c.cfg.SearchPrefix + ":" + query
	}

	scheme := "http"
	if c.cfg.Secure {
		scheme = "https"
	}
	reqURL := fmt.Sprintf("%s://%s:%d/v4/loadtracks?identifier=%s",
		scheme, c.cfg.Host, c.cfg.Port, url.QueryEscape(identifier))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loadtracks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loadtracks: unexpected status %d", resp.StatusCode)
	}

	var result LoadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("loadtracks decode: %w", err)
	}
	return &result, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Play starts the given encoded track. Issuing play while a track is already
// playing makes the node cut over immediately, so callers must only play when
// the guild is idle or a skip is intended.
func (c *Client) Play(guildID, encoded string) error {
	return c.sendOp(map[string]any{"op": "play", "guildId": guildID, "track": encoded})
}

func (c *Client) Stop(guildID string) error {
	return c.sendOp(map[string]any{"op": "stop", "guildId": guildID})
}

// Skip ends the current track; the node reports TrackEnded and the caller's
// event handling advances the queue.
func (c *Client) Skip(guildID string) error {
	return c.Stop(guildID)
}

func (c *Client) SetVolume(guildID string, percent int) error {
	if percent < MinVolume || percent > MaxVolume {
		return fmt.Errorf("volume %d out of range %d-%d", percent, MinVolume, MaxVolume)
	}
	return c.sendOp(map[string]any{"op": "volume", "guildId": guildID, "volume": percent})
}

func (c *Client) Seek(guildID string, positionMS int64) error {
	return c.sendOp(map[string]any{"op": "seek", "guildId": guildID, "position": positionMS})
}

// Destroy drops all node-side state for a guild.
func (c *Client) Destroy(guildID string) error {
	return c.sendOp(map[string]any{"op": "destroy", "guildId": guildID})
}

// VoiceState forwards the bot's own voice state update to the node.
func (c *Client) VoiceState(guildID, sessionID string) error {
	return c.sendOp(map[string]any{"op": "voiceUpdate", "guildId": guildID, "sessionId": sessionID})
}

// VoiceServer forwards a voice server update event to the node.
func (c *Client) VoiceServer(guildID string, event any) error {
	return c.sendOp(map[string]any{"op": "voiceUpdate", "guildId": guildID, "event": event})
}

func (c *Client) sendOp(data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return fmt.Errorf("node not connected")
	}
	return c.conn.WriteJSON(data)
}
