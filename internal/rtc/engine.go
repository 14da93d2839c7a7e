// Package rtc negotiates WebRTC calls between two users over the signaling
// topic and keeps the call_sessions row in step with the negotiation.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calls"
	"crm-calls/internal/media"
	"crm-calls/internal/metrics"
	"crm-calls/internal/signaling"
	"crm-calls/pkg/logger"

	"github.com/pion/webrtc/v4"
)

const asyncTimeout = 10 * time.Second

// Config carries the dependencies shared by every engine.
type Config struct {
	Store *calls.Store
	// Feed is optional; without it remote hangups are only noticed through
	// the peer connection state.
	Feed  *calls.Feed
	Bus   signaling.Bus
	Topic string
	Media media.Source
	Peers PeerFactory
	// Guard is optional.
	Guard       Guard
	RingTimeout time.Duration
	Metrics     *metrics.Collectors
	Log         *slog.Logger
	Clock       func() time.Time
}

type role int

const (
	roleCaller role = iota
	roleCallee
)

func (r role) String() string {
	if r == roleCaller {
		return "caller"
	}
	return "callee"
}

// activeCall is everything the engine holds for the one call it owns.
// Fields other than the outbound candidate buffer are guarded by Engine.opMu.
type activeCall struct {
	sessionID string
	role      role
	remoteID  string
	callType  calls.CallType

	stream    *media.Stream
	pc        PeerConnection
	offer     *webrtc.SessionDescription
	answered  bool
	remoteSet bool
	remoteICE candidateQueue

	guarded    bool
	counted    bool
	answeredAt time.Time
	ringTimer  *time.Timer

	mu              sync.Mutex
	descriptionSent bool
	localICE        []webrtc.ICECandidateInit
}

// Engine is one user's call negotiation state machine. It holds at most one
// call; operations are serialized.
//
// Callbacks run on engine goroutines and must not block or call back into
// the engine synchronously.
type Engine struct {
	userID   string
	userType auth.UserType
	cfg      Config
	log      *slog.Logger

	opMu sync.Mutex

	mu         sync.Mutex
	channel    *signaling.Channel
	call       *activeCall
	closed     bool
	stopFeed   func()
	onIncoming func(Incoming)
	onRemote   func(RemoteStream)
	onEnded    func(Ended)
	onSession  func(calls.Session)
}

func NewEngine(ctx context.Context, userID string, userType auth.UserType, cfg Config) (*Engine, error) {
	if userID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if cfg.Store == nil || cfg.Bus == nil || cfg.Media == nil || cfg.Peers == nil {
		return nil, errors.New("rtc: store, bus, media source and peer factory are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "call-signaling"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	e := &Engine{
		userID:   userID,
		userType: userType,
		cfg:      cfg,
		log:      logger.Component(cfg.Log, "rtc").With("user_id", userID),
	}

	ch, err := e.openChannel(ctx)
	if err != nil {
		return nil, err
	}
	e.channel = ch

	if cfg.Feed != nil {
		stop, err := cfg.Feed.Subscribe(ctx, e.sessionChanged)
		if err != nil {
			ch.Close()
			return nil, fmt.Errorf("rtc: subscribe session feed: %w", err)
		}
		e.stopFeed = stop
	}
	return e, nil
}

func (e *Engine) UserID() string { return e.userID }

func (e *Engine) OnIncoming(fn func(Incoming)) {
	e.mu.Lock()
	e.onIncoming = fn
	e.mu.Unlock()
}

func (e *Engine) OnRemoteStream(fn func(RemoteStream)) {
	e.mu.Lock()
	e.onRemote = fn
	e.mu.Unlock()
}

func (e *Engine) OnEnded(fn func(Ended)) {
	e.mu.Lock()
	e.onEnded = fn
	e.mu.Unlock()
}

// OnSession receives every change feed row this user participates in.
func (e *Engine) OnSession(fn func(calls.Session)) {
	e.mu.Lock()
	e.onSession = fn
	e.mu.Unlock()
}

// Current returns the id of the held session, if any.
func (e *Engine) Current() (string, bool) {
	call := e.current()
	if call == nil {
		return "", false
	}
	return call.sessionID, true
}

// Initiate places a call. The session row is created before media is
// requested, so a capture failure leaves it pending for the reaper.
func (e *Engine) Initiate(ctx context.Context, calleeID string, callType calls.CallType, callerType auth.UserType) (calls.Session, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.checkIdle(); err != nil {
		return calls.Session{}, err
	}
	guarded, err := e.acquireGuard(ctx)
	if err != nil {
		return calls.Session{}, err
	}

	sess, err := e.cfg.Store.Create(e.identity(ctx), calleeID, callType, callerType)
	if err != nil {
		e.releaseGuard()
		return calls.Session{}, err
	}

	call := &activeCall{
		sessionID: sess.ID,
		role:      roleCaller,
		remoteID:  calleeID,
		callType:  callType,
		guarded:   guarded,
		counted:   true,
	}
	e.cfg.Metrics.CallStarted(string(callType))
	e.hold(call)
	log := e.log.With("session_id", sess.ID, "callee_id", calleeID)

	if err := e.ensureMedia(ctx, call); err != nil {
		log.Warn("media unavailable, session left pending", "err", err)
		e.teardown(call, calls.StatusPending, ReasonError, false)
		return calls.Session{}, err
	}
	if err := e.ensurePeer(call); err != nil {
		e.teardown(call, calls.StatusPending, ReasonError, false)
		return calls.Session{}, err
	}

	offer, err := call.pc.CreateOffer()
	if err == nil {
		err = call.pc.SetLocalDescription(offer)
	}
	if err != nil {
		e.teardown(call, calls.StatusPending, ReasonError, false)
		return calls.Session{}, fmt.Errorf("rtc: create offer: %w", err)
	}
	err = e.send(ctx, signaling.Message{
		Kind:      signaling.KindOffer,
		SessionID: sess.ID,
		From:      e.userID,
		CallerID:  e.userID,
		CalleeID:  calleeID,
		CallType:  string(callType),
		SDP:       &offer,
	})
	if err != nil {
		e.teardown(call, calls.StatusPending, ReasonError, false)
		return calls.Session{}, err
	}
	e.descriptionSent(call)

	ringing, err := e.cfg.Store.UpdateStatus(e.identity(ctx), sess.ID, calls.StatusRinging, nil)
	switch {
	case err == nil:
		sess = ringing
	case errors.Is(err, calls.ErrInvalidTransition):
		// The callee already answered or declined; the feed delivers which.
		log.Info("session moved before ringing", "status", ringing.Status)
		sess = ringing
	default:
		e.teardown(call, calls.StatusPending, ReasonError, false)
		return calls.Session{}, err
	}

	e.armRingTimer(call)
	log.Info("call initiated", "call_type", callType)
	return sess, nil
}

// Accept answers the call addressed to this user and moves the row to active.
// Media and the peer connection are created here if the offer handler could not.
func (e *Engine) Accept(ctx context.Context, sessionID string) (calls.Session, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.isClosed() {
		return calls.Session{}, ErrClosed
	}
	sess, err := e.cfg.Store.Get(e.identity(ctx), sessionID)
	if err != nil {
		return calls.Session{}, err
	}
	if sess.CalleeID != e.userID {
		return calls.Session{}, ErrNotCallee
	}
	if sess.Status.IsTerminal() {
		return calls.Session{}, fmt.Errorf("%w: session is %s", calls.ErrInvalidTransition, sess.Status)
	}

	call := e.current()
	if call != nil && call.sessionID != sessionID {
		return calls.Session{}, ErrCallInProgress
	}
	fresh := call == nil
	if fresh {
		call = &activeCall{
			sessionID: sess.ID,
			role:      roleCallee,
			remoteID:  sess.CallerID,
			callType:  sess.CallType,
		}
		e.hold(call)
	}
	fail := func(err error) (calls.Session, error) {
		if fresh {
			e.teardown(call, sess.Status, ReasonError, false)
		}
		return calls.Session{}, err
	}

	if !call.guarded {
		guarded, err := e.acquireGuard(ctx)
		if err != nil {
			return fail(err)
		}
		call.guarded = guarded
	}
	if err := e.answerOffer(ctx, call); err != nil {
		return fail(err)
	}
	// No offer reached this engine, so nothing has been answered yet. The row
	// still goes active; media follows if the offer arrives later.
	mediaReady := call.answered

	active, err := e.cfg.Store.UpdateStatus(e.identity(ctx), sessionID, calls.StatusActive, nil)
	if err != nil {
		if errors.Is(err, calls.ErrInvalidTransition) && active.Status.IsTerminal() {
			e.teardown(call, active.Status, ReasonRemote, true)
			return calls.Session{}, err
		}
		return fail(err)
	}

	call.answeredAt = e.cfg.Clock()
	if !call.counted {
		call.counted = true
		e.cfg.Metrics.CallAnswered()
	}
	if !mediaReady {
		e.log.Warn("call accepted without an offer, no media path yet", "session_id", sessionID, "caller_id", sess.CallerID)
		e.mu.Lock()
		fn := e.onIncoming
		e.mu.Unlock()
		if fn != nil {
			fn(Incoming{SessionID: sessionID, CallerID: sess.CallerID, CallType: sess.CallType, MediaReady: false})
		}
		return active, nil
	}
	e.log.Info("call accepted", "session_id", sessionID, "caller_id", sess.CallerID)
	return active, nil
}

// Decline rejects a pending or ringing call. Either party may decline; the
// caller uses it to cancel before the callee answers.
func (e *Engine) Decline(ctx context.Context, sessionID string) (calls.Session, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	sess, err := e.cfg.Store.Decline(e.identity(ctx), sessionID)
	call := e.current()
	held := call != nil && call.sessionID == sessionID
	if err != nil {
		if held && errors.Is(err, calls.ErrInvalidTransition) && sess.Status.IsTerminal() {
			e.teardown(call, sess.Status, ReasonRemote, true)
		}
		return calls.Session{}, err
	}
	if held {
		e.teardown(call, calls.StatusDeclined, ReasonDeclined, true)
	}
	e.log.Info("call declined", "session_id", sessionID)
	return sess, nil
}

// End finalizes the held call and cleans up. Cleanup runs even when the
// finalize write fails; the error is still returned.
func (e *Engine) End(ctx context.Context) (calls.Session, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	call := e.current()
	if call == nil {
		return calls.Session{}, ErrNoActiveCall
	}
	return e.finish(ctx, call, ReasonHangup)
}

// Close ends any held call and releases the signaling and feed subscriptions.
func (e *Engine) Close() {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	call := e.call
	stopFeed := e.stopFeed
	e.stopFeed = nil
	e.mu.Unlock()

	if call != nil {
		if call.role == roleCallee && call.answeredAt.IsZero() {
			// Unanswered incoming call: leave the row to the caller's ring timeout.
			e.teardown(call, calls.StatusRinging, ReasonHangup, true)
		} else {
			ctx, cancel := e.background()
			if _, err := e.finish(ctx, call, ReasonHangup); err != nil {
				e.log.Warn("finalize on close failed", "session_id", call.sessionID, "err", err)
			}
			cancel()
		}
	}

	e.mu.Lock()
	ch := e.channel
	e.channel = nil
	e.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
	if stopFeed != nil {
		stopFeed()
	}
}

func (e *Engine) finish(ctx context.Context, call *activeCall, reason Reason) (calls.Session, error) {
	sess, err := e.cfg.Store.Finalize(e.identity(ctx), call.sessionID)
	status := calls.StatusEnded
	if err == nil {
		status = sess.Status
	}
	e.teardown(call, status, reason, true)
	if err != nil {
		return calls.Session{}, err
	}
	return sess, nil
}

// teardown releases everything held for call, reopens the signaling channel
// and fires OnEnded when notify is set. Only the first teardown of a call acts.
func (e *Engine) teardown(call *activeCall, status calls.Status, reason Reason, notify bool) {
	e.mu.Lock()
	if e.call != call {
		e.mu.Unlock()
		return
	}
	e.call = nil
	ch := e.channel
	e.channel = nil
	closed := e.closed
	onEnded := e.onEnded
	e.mu.Unlock()

	if call.ringTimer != nil {
		call.ringTimer.Stop()
	}
	call.stream.Stop()
	if call.pc != nil {
		if err := call.pc.Close(); err != nil {
			e.log.Warn("close peer connection", "session_id", call.sessionID, "err", err)
		}
	}
	if call.guarded {
		e.releaseGuard()
	}

	if ch != nil {
		ch.Close()
	}
	if !closed {
		if _, err := e.signalingChannel(context.Background()); err != nil {
			e.log.Error("reopen signaling channel", "err", err)
		}
	}

	if call.counted {
		var held time.Duration
		if !call.answeredAt.IsZero() {
			held = e.cfg.Clock().Sub(call.answeredAt)
		}
		e.cfg.Metrics.CallFinished(string(status), string(reason), held)
	}
	e.log.Info("call cleaned up",
		"session_id", call.sessionID, "role", call.role.String(), "status", status, "reason", reason)

	if notify && onEnded != nil {
		onEnded(Ended{SessionID: call.sessionID, Status: status, Reason: reason})
	}
}

func (e *Engine) ensureMedia(ctx context.Context, call *activeCall) error {
	if call.stream != nil {
		return nil
	}
	stream, err := e.cfg.Media.Acquire(ctx, media.Constraints{Audio: true, Video: call.callType.WantsVideo()})
	if err != nil {
		return err
	}
	call.stream = stream
	return nil
}

func (e *Engine) ensurePeer(call *activeCall) error {
	if call.pc != nil {
		return nil
	}
	pc, err := e.cfg.Peers.NewPeer()
	if err != nil {
		return err
	}
	pc.OnICECandidate(func(c webrtc.ICECandidateInit) { e.localCandidate(call, c) })
	pc.OnTrack(func(t RemoteTrack) { e.remoteTrack(call, t) })
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) { e.connectionState(call, s) })

	if call.stream != nil {
		for _, t := range call.stream.Tracks {
			if err := pc.AddTrack(t); err != nil {
				_ = pc.Close()
				return fmt.Errorf("rtc: add %s track: %w", t.Kind(), err)
			}
		}
	}
	call.pc = pc
	return nil
}

// answerOffer applies the retained offer and publishes the answer. It is a
// no-op once answered, and safe to retry after a failure.
func (e *Engine) answerOffer(ctx context.Context, call *activeCall) error {
	if err := e.ensureMedia(ctx, call); err != nil {
		return err
	}
	if err := e.ensurePeer(call); err != nil {
		return err
	}
	if call.offer == nil || call.answered {
		return nil
	}
	if !call.remoteSet {
		if err := call.pc.SetRemoteDescription(*call.offer); err != nil {
			return fmt.Errorf("rtc: apply offer: %w", err)
		}
		call.remoteSet = true
		e.flushRemoteCandidates(call)
	}

	answer, err := call.pc.CreateAnswer()
	if err == nil {
		err = call.pc.SetLocalDescription(answer)
	}
	if err != nil {
		return fmt.Errorf("rtc: create answer: %w", err)
	}
	err = e.send(ctx, signaling.Message{
		Kind:      signaling.KindAnswer,
		SessionID: call.sessionID,
		From:      e.userID,
		SDP:       &answer,
	})
	if err != nil {
		return err
	}
	call.answered = true
	e.descriptionSent(call)
	return nil
}

func (e *Engine) flushRemoteCandidates(call *activeCall) {
	for _, c := range call.remoteICE.drain() {
		if err := call.pc.AddICECandidate(c); err != nil {
			e.log.Warn("apply queued ice candidate", "session_id", call.sessionID, "err", err)
		}
	}
}

// handleOffer prepares an answer for a call addressed to this user while idle.
// The row is not touched; Accept or Decline decides it.
func (e *Engine) handleOffer(_ context.Context, msg signaling.Message) error {
	if msg.From == e.userID || msg.CalleeID != e.userID {
		return nil
	}
	callType := calls.CallType(msg.CallType)
	if !callType.Valid() {
		return fmt.Errorf("%w: call_type %q", signaling.ErrMalformed, msg.CallType)
	}

	e.opMu.Lock()
	if e.isClosed() {
		e.opMu.Unlock()
		return nil
	}
	if held := e.current(); held != nil {
		if held.sessionID == msg.SessionID && held.role == roleCallee && held.offer == nil {
			e.lateOffer(held, *msg.SDP)
			e.opMu.Unlock()
			return nil
		}
		e.opMu.Unlock()
		if held.sessionID != msg.SessionID {
			e.log.Info("ignoring offer while busy", "session_id", msg.SessionID, "held_session_id", held.sessionID)
		}
		return nil
	}

	offer := *msg.SDP
	call := &activeCall{
		sessionID: msg.SessionID,
		role:      roleCallee,
		remoteID:  msg.CallerID,
		callType:  callType,
		offer:     &offer,
	}
	e.hold(call)

	ctx, cancel := e.background()
	ready := true
	if err := e.answerOffer(ctx, call); err != nil {
		ready = false
		e.log.Warn("could not answer offer, accept will retry", "session_id", msg.SessionID, "err", err)
	}
	cancel()

	e.mu.Lock()
	fn := e.onIncoming
	e.mu.Unlock()
	e.opMu.Unlock()

	e.log.Info("incoming call", "session_id", msg.SessionID, "caller_id", msg.CallerID, "call_type", callType)
	if fn != nil {
		fn(Incoming{SessionID: msg.SessionID, CallerID: msg.CallerID, CallType: callType, MediaReady: ready})
	}
	return nil
}

// lateOffer answers an offer for a call that was accepted before the offer
// reached this engine. Caller holds opMu.
func (e *Engine) lateOffer(call *activeCall, offer webrtc.SessionDescription) {
	call.offer = &offer
	ctx, cancel := e.background()
	defer cancel()
	if err := e.answerOffer(ctx, call); err != nil {
		e.log.Warn("could not answer late offer", "session_id", call.sessionID, "err", err)
		return
	}
	e.log.Info("late offer answered", "session_id", call.sessionID)
}

func (e *Engine) handleAnswer(_ context.Context, msg signaling.Message) error {
	if msg.From == e.userID {
		return nil
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	call := e.current()
	if call == nil || call.sessionID != msg.SessionID || call.role != roleCaller || call.remoteSet {
		return nil
	}
	if call.pc == nil {
		return fmt.Errorf("rtc: answer for %s before peer connection exists", msg.SessionID)
	}
	if err := call.pc.SetRemoteDescription(*msg.SDP); err != nil {
		return fmt.Errorf("rtc: apply answer: %w", err)
	}
	call.remoteSet = true
	e.flushRemoteCandidates(call)
	return nil
}

// handleCandidate applies a remote candidate, queueing it until the remote
// description is set.
func (e *Engine) handleCandidate(_ context.Context, msg signaling.Message) error {
	if msg.From == e.userID {
		return nil
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	call := e.current()
	if call == nil || call.sessionID != msg.SessionID {
		return nil
	}
	if call.pc == nil || !call.remoteSet {
		call.remoteICE.push(*msg.Candidate)
		return nil
	}
	if err := call.pc.AddICECandidate(*msg.Candidate); err != nil {
		return fmt.Errorf("rtc: add ice candidate: %w", err)
	}
	return nil
}

// localCandidate publishes a gathered candidate, holding it until the
// description it belongs to has been sent.
func (e *Engine) localCandidate(call *activeCall, c webrtc.ICECandidateInit) {
	call.mu.Lock()
	if !call.descriptionSent {
		call.localICE = append(call.localICE, c)
		call.mu.Unlock()
		return
	}
	call.mu.Unlock()
	e.sendCandidate(call, c)
}

func (e *Engine) descriptionSent(call *activeCall) {
	call.mu.Lock()
	call.descriptionSent = true
	pending := call.localICE
	call.localICE = nil
	call.mu.Unlock()

	for _, c := range pending {
		e.sendCandidate(call, c)
	}
}

func (e *Engine) sendCandidate(call *activeCall, c webrtc.ICECandidateInit) {
	if e.current() != call {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
	defer cancel()
	err := e.send(ctx, signaling.Message{
		Kind:      signaling.KindICECandidate,
		SessionID: call.sessionID,
		From:      e.userID,
		Candidate: &c,
	})
	if err != nil {
		e.log.Warn("send ice candidate", "session_id", call.sessionID, "err", err)
	}
}

func (e *Engine) remoteTrack(call *activeCall, t RemoteTrack) {
	if e.current() != call {
		return
	}
	e.mu.Lock()
	fn := e.onRemote
	e.mu.Unlock()

	e.log.Info("remote track", "session_id", call.sessionID, "kind", t.Kind().String())
	if fn != nil {
		fn(RemoteStream{
			SessionID: call.sessionID,
			TrackID:   t.ID(),
			StreamID:  t.StreamID(),
			Kind:      t.Kind().String(),
		})
	}
}

func (e *Engine) connectionState(call *activeCall, s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		go e.dropped(call, s)
	default:
		e.log.Debug("peer connection state", "session_id", call.sessionID, "state", s.String())
	}
}

// dropped ends the call the same way a hangup does, with whatever duration elapsed.
func (e *Engine) dropped(call *activeCall, s webrtc.PeerConnectionState) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if e.current() != call {
		return
	}
	e.log.Warn("peer connection lost", "session_id", call.sessionID, "state", s.String())

	ctx, cancel := e.background()
	defer cancel()
	if _, err := e.finish(ctx, call, ReasonNetwork); err != nil {
		e.log.Warn("finalize dropped call", "session_id", call.sessionID, "err", err)
	}
}

func (e *Engine) armRingTimer(call *activeCall) {
	if e.cfg.RingTimeout <= 0 {
		return
	}
	call.ringTimer = time.AfterFunc(e.cfg.RingTimeout, func() { e.ringExpired(call) })
}

func (e *Engine) ringExpired(call *activeCall) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if e.current() != call || !call.answeredAt.IsZero() {
		return
	}

	ctx, cancel := e.background()
	defer cancel()
	sess, err := e.cfg.Store.MarkMissed(ctx, call.sessionID)
	if err != nil {
		if errors.Is(err, calls.ErrInvalidTransition) {
			if sess.Status.IsTerminal() {
				e.teardown(call, sess.Status, ReasonRemote, true)
			}
			// Otherwise the callee answered and the feed has not caught up.
			return
		}
		e.log.Warn("mark missed failed, reaper will retry", "session_id", call.sessionID, "err", err)
	}
	e.log.Info("call not answered", "session_id", call.sessionID, "timeout", e.cfg.RingTimeout)
	e.teardown(call, calls.StatusMissed, ReasonTimeout, true)
}

// sessionChanged reacts to rows written by the other party or the reaper.
func (e *Engine) sessionChanged(s calls.Session) {
	if !s.Involves(e.userID) {
		return
	}
	e.mu.Lock()
	fn := e.onSession
	e.mu.Unlock()
	if fn != nil {
		fn(s)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	call := e.current()
	if call == nil || call.sessionID != s.ID {
		return
	}
	switch {
	case s.Status == calls.StatusActive && call.role == roleCaller:
		if call.answeredAt.IsZero() {
			call.answeredAt = e.cfg.Clock()
			if call.ringTimer != nil {
				call.ringTimer.Stop()
			}
		}
	case s.Status.IsTerminal():
		e.teardown(call, s.Status, ReasonRemote, true)
	}
}

func (e *Engine) openChannel(ctx context.Context) (*signaling.Channel, error) {
	ch, err := signaling.Open(ctx, e.cfg.Bus, e.cfg.Topic, e.log, e.cfg.Metrics)
	if err != nil {
		return nil, err
	}
	ch.OnMessage(signaling.KindOffer, e.handleOffer)
	ch.OnMessage(signaling.KindAnswer, e.handleAnswer)
	ch.OnMessage(signaling.KindICECandidate, e.handleCandidate)
	return ch, nil
}

// signalingChannel returns the open channel, reopening it if a previous
// reopen failed.
func (e *Engine) signalingChannel(ctx context.Context) (*signaling.Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.channel != nil {
		return e.channel, nil
	}
	ch, err := e.openChannel(ctx)
	if err != nil {
		return nil, err
	}
	e.channel = ch
	return ch, nil
}

func (e *Engine) send(ctx context.Context, msg signaling.Message) error {
	ch, err := e.signalingChannel(ctx)
	if err != nil {
		return err
	}
	return ch.Send(ctx, msg)
}

func (e *Engine) acquireGuard(ctx context.Context) (bool, error) {
	if e.cfg.Guard == nil {
		return false, nil
	}
	ok, err := e.cfg.Guard.Acquire(ctx, e.userID)
	if err != nil {
		e.log.Warn("call guard unavailable, continuing without it", "err", err)
		return false, nil
	}
	if !ok {
		return false, ErrCallInProgress
	}
	return true, nil
}

func (e *Engine) releaseGuard() {
	if e.cfg.Guard == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cfg.Guard.Release(ctx, e.userID); err != nil {
		e.log.Warn("release call guard", "err", err)
	}
}

func (e *Engine) checkIdle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.call != nil {
		return ErrCallInProgress
	}
	return nil
}

func (e *Engine) hold(call *activeCall) {
	e.mu.Lock()
	e.call = call
	e.mu.Unlock()
}

func (e *Engine) current() *activeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.call
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) identity(ctx context.Context) context.Context {
	return auth.WithIdentity(ctx, e.userID, e.userType)
}

// background is the context for work no request is waiting on.
func (e *Engine) background() (context.Context, context.CancelFunc) {
	return context.WithTimeout(e.identity(context.Background()), asyncTimeout)
}
