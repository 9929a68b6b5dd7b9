package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natsukashi/hibiki/internal/node"
	"github.com/natsukashi/hibiki/internal/repository"
)

// fakeNode records control calls and serves canned load results.
type fakeNode struct {
	mu         sync.Mutex
	results    map[string]*node.LoadResult
	resolveErr error
	playErr    error

	playCalls    []string
	stopCalls    int
	destroyCalls int
	seekCalls    []int64
	volumes      []int
}

func (f *fakeNode) Resolve(ctx context.Context, query string) (*node.LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if res, ok := f.results[query]; ok {
		return res, nil
	}
	return &node.LoadResult{LoadType: node.LoadTypeNoMatch}, nil
}

func (f *fakeNode) Play(guildID, encoded string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playCalls = append(f.playCalls, encoded)
	return nil
}

func (f *fakeNode) Stop(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeNode) SetVolume(guildID string, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, percent)
	return nil
}

func (f *fakeNode) Seek(guildID string, positionMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekCalls = append(f.seekCalls, positionMS)
	return nil
}

func (f *fakeNode) Destroy(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
	return nil
}

func (f *fakeNode) plays() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.playCalls...)
}

// fakeVoice answers membership queries from a static map.
type fakeVoice struct {
	mu           sync.Mutex
	userChannels map[string]string
	denyPerms    bool
	joinErr      error

	joinCalls  []string
	leaveCalls int
}

func (f *fakeVoice) Join(guildID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joinCalls = append(f.joinCalls, channelID)
	return nil
}

func (f *fakeVoice) Leave(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls++
	return nil
}

func (f *fakeVoice) UserChannel(guildID, userID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.userChannels[userID]
	return ch, ok
}

func (f *fakeVoice) CanConnectSpeak(guildID, channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.denyPerms
}

func (f *fakeVoice) leaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaveCalls
}

// fakeNotify records posted and deleted status messages.
type fakeNotify struct {
	mu        sync.Mutex
	nowCalls  []string
	deleted   []string
	farewells []string
	nextMsgID string
}

func (f *fakeNotify) NowPlaying(channelID string, t Track) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowCalls = append(f.nowCalls, channelID)
	if f.nextMsgID == "" {
		f.nextMsgID = "msg-1"
	}
	return f.nextMsgID, nil
}

func (f *fakeNotify) DeleteMessage(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeNotify) Farewell(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.farewells = append(f.farewells, channelID)
	return nil
}

func (f *fakeNotify) farewellCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.farewells)
}

// fakeStore is an in-memory StateStore.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]repository.QueueState
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]repository.QueueState)}
}

func (f *fakeStore) SaveQueueState(ctx context.Context, q *repository.QueueState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[q.GuildID] = *q
	return nil
}

func (f *fakeStore) UpdateQueuePosition(ctx context.Context, guild string, positionMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[guild]; ok {
		row.CurrentPositionMS = positionMS
		f.rows[guild] = row
	}
	return nil
}

func (f *fakeStore) DeleteQueueState(ctx context.Context, guild string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, guild)
	f.deletes++
	return nil
}

func (f *fakeStore) ListQueueStates(ctx context.Context) ([]repository.QueueState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repository.QueueState, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) row(guild string) (repository.QueueState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[guild]
	return r, ok
}

type fixture struct {
	node   *fakeNode
	voice  *fakeVoice
	notify *fakeNotify
	store  *fakeStore
	reg    *Registry
	sess   *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fn := &fakeNode{results: make(map[string]*node.LoadResult)}
	fv := &fakeVoice{userChannels: map[string]string{"user-1": "vc-1"}}
	fm := &fakeNotify{}
	fs := newFakeStore()
	reg := NewRegistry(Deps{Node: fn, Voice: fv, Notify: fm, Store: fs, IdleWait: 20 * time.Millisecond})
	return &fixture{node: fn, voice: fv, notify: fm, store: fs, reg: reg, sess: reg.GetOrCreate("guild-1")}
}

func singleTrack(encoded, uri, title string) *node.LoadResult {
	return &node.LoadResult{
		LoadType: node.LoadTypeTrack,
		Tracks: []node.Track{
			{Encoded: encoded, Info: node.TrackInfo{URI: uri, Title: title, Author: "author", Length: 180000}},
		},
	}
}

func (f *fixture) join(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sess.EnsureJoined("user-1", true))
}

func TestEnsureJoinedConnects(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.sess.EnsureJoined("user-1", true))
	assert.Equal(t, Connected, f.sess.State())
	assert.Equal(t, "vc-1", f.sess.VoiceChannelID())
	assert.Equal(t, []string{"vc-1"}, f.voice.joinCalls)
}

func TestEnsureJoinedOnlyPlayMayConnect(t *testing.T) {
	f := newFixture(t)

	err := f.sess.EnsureJoined("user-1", false)
	require.ErrorIs(t, err, ErrJoinNotPermitted)
	assert.Equal(t, Disconnected, f.sess.State())
	assert.Empty(t, f.voice.joinCalls)
}

func TestEnsureJoinedUserNotInVoice(t *testing.T) {
	f := newFixture(t)

	err := f.sess.EnsureJoined("stranger", true)
	require.ErrorIs(t, err, ErrNoUserChannel)
	assert.Equal(t, Disconnected, f.sess.State())
}

func TestEnsureJoinedMissingPermissions(t *testing.T) {
	f := newFixture(t)
	f.voice.denyPerms = true

	err := f.sess.EnsureJoined("user-1", true)
	require.ErrorIs(t, err, ErrInsufficientPermissions)
	assert.Equal(t, Disconnected, f.sess.State())
	assert.Empty(t, f.voice.joinCalls)
}

func TestEnsureJoinedConnectFailureRestoresState(t *testing.T) {
	f := newFixture(t)
	f.voice.joinErr = errors.New("gateway down")

	err := f.sess.EnsureJoined("user-1", true)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Disconnected, f.sess.State())
}

func TestEnsureJoinedChannelMismatch(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.voice.mu.Lock()
	f.voice.userChannels["user-1"] = "vc-2"
	f.voice.mu.Unlock()

	err := f.sess.EnsureJoined("user-1", false)
	require.ErrorIs(t, err, ErrChannelMismatch)
	assert.Equal(t, "vc-1", f.sess.VoiceChannelID())

	// play may move the bot instead
	require.NoError(t, f.sess.EnsureJoined("user-1", true))
	assert.Equal(t, "vc-2", f.sess.VoiceChannelID())
}

func TestEnsureJoinedSameChannelNoop(t *testing.T) {
	f := newFixture(t)
	f.join(t)

	require.NoError(t, f.sess.EnsureJoined("user-1", false))
	assert.Len(t, f.voice.joinCalls, 1)
}

func TestEnqueueStartsFirstTrack(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["song"] = singleTrack("enc-1", "https://example.com/1", "Song One")

	res, err := f.sess.Enqueue(context.Background(), "song", "user-1", "text-1")
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Equal(t, []string{"enc-1"}, f.node.plays())
	assert.Equal(t, 0, f.sess.QueueLen())

	cur, _, _ := f.sess.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "Song One", cur.Title)
	assert.Equal(t, "user-1", cur.RequesterID)

	row, ok := f.store.row("guild-1")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/1", row.CurrentTrackURI)
	assert.Equal(t, "text-1", row.TextChannelID)
}

func TestEnqueueWhilePlayingDoesNotPlay(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["one"] = singleTrack("enc-1", "u1", "One")
	f.node.results["two"] = singleTrack("enc-2", "u2", "Two")

	_, err := f.sess.Enqueue(context.Background(), "one", "user-1", "text-1")
	require.NoError(t, err)
	res, err := f.sess.Enqueue(context.Background(), "two", "user-1", "text-1")
	require.NoError(t, err)

	assert.False(t, res.Started)
	assert.Equal(t, []string{"enc-1"}, f.node.plays(), "a second play would cut off the running track")
	assert.Equal(t, 1, f.sess.QueueLen())

	row, ok := f.store.row("guild-1")
	require.True(t, ok)
	assert.Equal(t, []string{"u2"}, row.RemainingQueue)
}

func TestEnqueuePlaylist(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["pl"] = &node.LoadResult{
		LoadType:     node.LoadTypePlaylist,
		PlaylistInfo: &node.PlaylistInfo{Name: "Mix"},
		Tracks: []node.Track{
			{Encoded: "e1", Info: node.TrackInfo{URI: "u1", Title: "T1"}},
			{Encoded: "e2", Info: node.TrackInfo{URI: "u2", Title: "T2"}},
			{Encoded: "e3", Info: node.TrackInfo{URI: "u3", Title: "T3"}},
		},
	}

	res, err := f.sess.Enqueue(context.Background(), "pl", "user-1", "text-1")
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Equal(t, "Mix", res.PlaylistName)
	assert.Len(t, res.Tracks, 3)
	assert.Equal(t, []string{"e1"}, f.node.plays())
	assert.Equal(t, 2, f.sess.QueueLen())
}

func TestEnqueueNoMatches(t *testing.T) {
	f := newFixture(t)
	f.join(t)

	_, err := f.sess.Enqueue(context.Background(), "nothing here", "user-1", "text-1")
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.NoMatches)
	assert.Empty(t, f.node.plays())

	cur, _, _ := f.sess.Current()
	assert.Nil(t, cur)
	_, ok := f.store.row("guild-1")
	assert.False(t, ok)
}

func TestEnqueueLoadFailed(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["broken"] = &node.LoadResult{
		LoadType:  node.LoadTypeFailed,
		Exception: &node.LoadException{Message: "video unavailable"},
	}

	_, err := f.sess.Enqueue(context.Background(), "broken", "user-1", "text-1")
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Error(), "video unavailable")
}

func TestEnqueuePlayFailureReverts(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["song"] = singleTrack("enc-1", "u1", "One")
	f.node.playErr = errors.New("node gone")

	_, err := f.sess.Enqueue(context.Background(), "song", "user-1", "text-1")
	require.Error(t, err)

	cur, _, _ := f.sess.Current()
	assert.Nil(t, cur)
	assert.Equal(t, 1, f.sess.QueueLen(), "failed head goes back to the queue")
}

func TestSkipRequiresPlayingTrack(t *testing.T) {
	f := newFixture(t)
	f.join(t)

	require.Error(t, f.sess.Skip())
	assert.Equal(t, 0, f.node.stopCalls)
}

func TestSkipStopsCurrentTrack(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["song"] = singleTrack("enc-1", "u1", "One")
	_, err := f.sess.Enqueue(context.Background(), "song", "user-1", "text-1")
	require.NoError(t, err)

	require.NoError(t, f.sess.Skip())
	assert.Equal(t, 1, f.node.stopCalls)
}

func TestStopClearsQueueButStaysConnected(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["one"] = singleTrack("e1", "u1", "One")
	f.node.results["two"] = singleTrack("e2", "u2", "Two")
	_, _ = f.sess.Enqueue(context.Background(), "one", "user-1", "text-1")
	_, _ = f.sess.Enqueue(context.Background(), "two", "user-1", "text-1")

	require.NoError(t, f.sess.Stop(context.Background()))
	assert.Equal(t, 0, f.sess.QueueLen())
	assert.Equal(t, Connected, f.sess.State())
	_, ok := f.store.row("guild-1")
	assert.False(t, ok)
}

func TestLeaveTearsEverythingDown(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["song"] = singleTrack("e1", "u1", "One")
	_, _ = f.sess.Enqueue(context.Background(), "song", "user-1", "text-1")

	require.NoError(t, f.sess.Leave(context.Background()))
	assert.Equal(t, Disconnected, f.sess.State())
	assert.Equal(t, "", f.sess.VoiceChannelID())
	assert.Equal(t, 1, f.voice.leaves())
	assert.Equal(t, 1, f.node.destroyCalls)
	_, ok := f.store.row("guild-1")
	assert.False(t, ok)

	cur, _, _ := f.sess.Current()
	assert.Nil(t, cur)
}

func TestSetVolumeRange(t *testing.T) {
	f := newFixture(t)

	require.Error(t, f.sess.SetVolume(node.MinVolume-1))
	require.Error(t, f.sess.SetVolume(node.MaxVolume+1))
	require.NoError(t, f.sess.SetVolume(node.MaxVolume))
	assert.Equal(t, []int{node.MaxVolume}, f.node.volumes)
}

func TestSetPositionPersistsWhilePlaying(t *testing.T) {
	f := newFixture(t)
	f.join(t)
	f.node.results["song"] = singleTrack("e1", "u1", "One")
	_, _ = f.sess.Enqueue(context.Background(), "song", "user-1", "text-1")

	f.sess.SetPosition(context.Background(), 42000)
	row, ok := f.store.row("guild-1")
	require.True(t, ok)
	assert.Equal(t, int64(42000), row.CurrentPositionMS)

	_, _, pos := f.sess.Current()
	assert.Equal(t, int64(42000), pos)
}

func TestRegistryGetOrCreateIsSingleton(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	out := make([]*Session, 16)
	for i := range out {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out[n] = f.reg.GetOrCreate("guild-x")
		}(i)
	}
	wg.Wait()

	for _, s := range out {
		assert.Same(t, out[0], s)
	}
	assert.Nil(t, f.reg.Peek("guild-y"))
}

func TestRegistryRemoveDestroysNodeState(t *testing.T) {
	f := newFixture(t)
	f.join(t)

	f.reg.Remove("guild-1")
	assert.Nil(t, f.reg.Peek("guild-1"))
	assert.Equal(t, 1, f.node.destroyCalls)
}
