package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calllog"
	"crm-calls/internal/calls"
	"crm-calls/internal/media"
	"crm-calls/internal/signaling"

	"github.com/pion/webrtc/v4"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakePeer struct {
	mu         sync.Mutex
	tracks     []webrtc.TrackLocal
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool

	// gather is emitted through OnICECandidate when the local description is set.
	gather []webrtc.ICECandidateInit

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

func (p *fakePeer) AddTrack(t webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, errors.New("fake: no remote description")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	p.local = &d
	gather := p.gather
	onICE := p.onICE
	p.mu.Unlock()
	for _, c := range gather {
		if onICE != nil {
			onICE(c)
		}
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &d
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("fake: remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnTrack(fn func(RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) setState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(s)
}

func (p *fakePeer) emitTrack(t RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(t)
}

func (p *fakePeer) snapshot() (remote *webrtc.SessionDescription, candidates []webrtc.ICECandidateInit, tracks int, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote, append([]webrtc.ICECandidateInit(nil), p.candidates...), len(p.tracks), p.closed
}

type fakePeers struct {
	mu     sync.Mutex
	peers  []*fakePeer
	gather []webrtc.ICECandidateInit
}

func (f *fakePeers) NewPeer() (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{gather: f.gather}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeers) last(t *testing.T) *fakePeer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		t.Fatalf("no peer connection was created")
	}
	return f.peers[len(f.peers)-1]
}

type fakeTrack struct{ kind webrtc.RTPCodecType }

func (t fakeTrack) ID() string                { return "remote-" + t.kind.String() }
func (t fakeTrack) StreamID() string          { return "remote-stream" }
func (t fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

type fakeMedia struct {
	mu       sync.Mutex
	err      error
	acquired []media.Constraints
	stopped  int
}

func (m *fakeMedia) RegisterCodecs(*webrtc.MediaEngine) error { return nil }

func (m *fakeMedia) Acquire(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.acquired = append(m.acquired, c)
	var tracks []webrtc.TrackLocal
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "local")
	if err != nil {
		return nil, err
	}
	tracks = append(tracks, audio)
	if c.Video {
		video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "local")
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, video)
	}
	return media.NewStream(tracks, func() {
		m.mu.Lock()
		m.stopped++
		m.mu.Unlock()
	}), nil
}

func (m *fakeMedia) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *fakeMedia) counts() (acquired, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acquired), m.stopped
}

// party is one user's engine plus everything it observed.
type party struct {
	engine   *Engine
	media    *fakeMedia
	peers    *fakePeers
	incoming chan Incoming
	remote   chan RemoteStream
	ended    chan Ended
}

type fixture struct {
	bus   *signaling.MemoryBus
	repo  *calls.MemoryRepo
	logs  *calllog.MemoryRepo
	store *calls.Store
	feed  *calls.Feed
	clock *fakeClock
	guard *LocalGuard
}

const testTopic = "call-signaling"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := signaling.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	repo := calls.NewMemoryRepo()
	logs := calllog.NewMemoryRepo()
	feed := calls.NewFeed(bus, "call-sessions", nil)
	store := calls.NewStore(repo, calllog.NewService(logs).WithClock(clock.Now),
		calls.WithClock(clock.Now), calls.WithNotifier(feed))
	return &fixture{bus: bus, repo: repo, logs: logs, store: store, feed: feed, clock: clock, guard: NewLocalGuard()}
}

func (f *fixture) config(m *fakeMedia, peers *fakePeers, ring time.Duration) Config {
	return Config{
		Store:       f.store,
		Feed:        f.feed,
		Bus:         f.bus,
		Topic:       testTopic,
		Media:       m,
		Peers:       peers,
		Guard:       f.guard,
		RingTimeout: ring,
		Clock:       f.clock.Now,
	}
}

func (f *fixture) party(t *testing.T, userID string, userType auth.UserType, ring time.Duration) *party {
	t.Helper()
	p := &party{
		media:    &fakeMedia{},
		peers:    &fakePeers{},
		incoming: make(chan Incoming, 8),
		remote:   make(chan RemoteStream, 8),
		ended:    make(chan Ended, 8),
	}
	e, err := NewEngine(context.Background(), userID, userType, f.config(p.media, p.peers, ring))
	if err != nil {
		t.Fatalf("new engine %s: %v", userID, err)
	}
	e.OnIncoming(func(in Incoming) { p.incoming <- in })
	e.OnRemoteStream(func(rs RemoteStream) { p.remote <- rs })
	e.OnEnded(func(end Ended) { p.ended <- end })
	t.Cleanup(e.Close)
	p.engine = e
	return p
}

func (f *fixture) session(t *testing.T, id string) calls.Session {
	t.Helper()
	s, err := f.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("load session %s: %v", id, err)
	}
	return s
}

func as(userID string, userType auth.UserType) context.Context {
	return auth.WithIdentity(context.Background(), userID, userType)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}
