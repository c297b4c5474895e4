package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/domains/dtos"
	"github.com/tempo-chess/tempo/internal/domains/entities"
	"github.com/tempo-chess/tempo/internal/rules"
	"github.com/tempo-chess/tempo/internal/storage"
	"github.com/tempo-chess/tempo/internal/tournament"
	"github.com/tempo-chess/tempo/internal/transport"
	"github.com/tempo-chess/tempo/pkg/logging"
	"github.com/tempo-chess/tempo/pkg/utils"
)

// Options tunes the coordinator's timeouts. Zero values take defaults.
type Options struct {
	// GateTimeout bounds the synchronous durable gates (writeInitial,
	// finalize) so a slow store surfaces a failure instead of hanging.
	GateTimeout time.Duration
	// IdleTimeout aborts sessions with no activity. Zero disables.
	IdleTimeout time.Duration
	// ReconcileInterval paces the durable resync pass.
	ReconcileInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.GateTimeout == 0 {
		o.GateTimeout = 5 * time.Second
	}
	if o.ReconcileInterval == 0 {
		o.ReconcileInterval = 30 * time.Second
	}
}

// Coordinator owns the session lifecycle: it pairs waiters, creates and
// mutates live sessions, detects terminal states, keeps the durable store in
// step and hands finished tournament games to the score propagator.
type Coordinator struct {
	sessions  *Store
	queue     *Queue
	store     storage.SessionStore
	validator rules.Validator
	publisher transport.Publisher
	scorer    *tournament.Propagator
	recon     *Reconciler

	gateTimeout time.Duration
	idleTimeout time.Duration

	// gates tracks in-flight synchronous durable writes so shutdown can
	// drain them. Live sessions are left for the recovery path.
	gates sync.WaitGroup
}

func NewCoordinator(
	sessions *Store,
	queue *Queue,
	store storage.SessionStore,
	validator rules.Validator,
	publisher transport.Publisher,
	scorer *tournament.Propagator,
	opts Options,
) *Coordinator {
	opts.withDefaults()
	c := &Coordinator{
		sessions:    sessions,
		queue:       queue,
		store:       store,
		validator:   validator,
		publisher:   publisher,
		scorer:      scorer,
		gateTimeout: opts.GateTimeout,
		idleTimeout: opts.IdleTimeout,
	}
	c.recon = newReconciler(c, opts.ReconcileInterval)
	return c
}

// RunReconciler drives the periodic durable resync until ctx is cancelled.
func (c *Coordinator) RunReconciler(ctx context.Context) {
	c.recon.run(ctx)
}

// JoinMatchmaking queues the participant or, when a compatible waiter
// exists, consumes that waiter and creates the session. The earlier-joined
// waiter takes white.
func (c *Coordinator) JoinMatchmaking(
	ctx context.Context,
	participantId, timeControl string,
	rating float64,
) (JoinState, *Session, error) {
	if _, ok := c.sessions.ForParticipant(participantId); ok {
		return "", nil, ErrAlreadyInSession
	}

	result := c.queue.Join(participantId, timeControl, rating)
	if result.State == JoinBlocked {
		return "", nil, ErrAlreadyInSession
	}
	if result.State == JoinWaiting {
		c.publisher.Publish(transport.PlayerTopic(participantId), transport.NewEvent(
			"matchmaking_joined",
			dtos.MatchmakingJoined{TimeControl: timeControl, Rating: rating},
		))
		logging.Info("matchmaking queued",
			zap.String("participant_id", participantId),
			zap.String("time_control", timeControl),
		)
		return JoinWaiting, nil, nil
	}

	opponent := result.Opponent
	session, err := c.CreateSession(ctx, opponent.ParticipantId, participantId, timeControl, nil)
	if err != nil {
		// The consumed waiter goes back to the head of the line; both
		// reservations are released.
		c.queue.Requeue(opponent)
		c.queue.ClearPending(participantId)
		return "", nil, err
	}
	// The session is live and holds both participants; the queue
	// reservations have done their job.
	c.queue.ClearPending(session.White, session.Black)

	c.publisher.Publish(transport.PlayerTopic(session.White), transport.NewEvent(
		"match_found",
		dtos.MatchFound{
			SessionId:   session.Id,
			Color:       string(rules.White),
			Opponent:    session.Black,
			TimeControl: timeControl,
		},
	))
	c.publisher.Publish(transport.PlayerTopic(session.Black), transport.NewEvent(
		"match_found",
		dtos.MatchFound{
			SessionId:   session.Id,
			Color:       string(rules.Black),
			Opponent:    session.White,
			TimeControl: timeControl,
		},
	))
	return JoinMatched, session, nil
}

// CancelMatchmaking removes the participant's queue entry. Cancelling a
// participant who was never queued is a silent no-op.
func (c *Coordinator) CancelMatchmaking(participantId string) {
	if c.queue.Cancel(participantId) {
		logging.Info("matchmaking cancelled", zap.String("participant_id", participantId))
	}
}

// CreateSession persists the initial durable record, then inserts the live
// session. The durable write is the gate: if it cannot be confirmed, no live
// session exists and there is nothing to recover.
func (c *Coordinator) CreateSession(
	ctx context.Context,
	white, black, timeControl string,
	tournamentRef *entities.TournamentRef,
) (*Session, error) {
	sessionId := utils.GenerateUUID()
	record := entities.SessionRecord{
		SessionId:   sessionId,
		White:       white,
		Black:       black,
		TimeControl: timeControl,
		Status:      entities.StatusLive,
		Moves:       []string{},
		Tournament:  tournamentRef,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	gateCtx, cancel := context.WithTimeout(ctx, c.gateTimeout)
	defer cancel()
	c.gates.Add(1)
	err := c.store.WriteInitial(gateCtx, record)
	c.gates.Done()
	if err != nil {
		logging.Error("initial durable write failed",
			zap.String("session_id", sessionId),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrCreationFailure, err)
	}

	session := newSession(sessionId, white, black, timeControl, tournamentRef, c.validator.New(), nil)
	if err := c.sessions.Insert(session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreationFailure, err)
	}
	c.armTimers(session)

	logging.Info("session created",
		zap.String("session_id", sessionId),
		zap.String("white", white),
		zap.String("black", black),
		zap.String("time_control", timeControl),
	)
	return session, nil
}

// ApplyMove validates and applies one move. The session lock serializes the
// whole command; history append and position mutation happen in the same
// step, so replaying moveHistory always reproduces position.
func (c *Coordinator) ApplyMove(ctx context.Context, sessionId, participantId, uci string) error {
	session, ok := c.sessions.Get(sessionId)
	if !ok {
		return ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != entities.StatusLive {
		return ErrSessionEnded
	}
	side, ok := session.side(participantId)
	if !ok {
		return ErrNotParticipant
	}
	if session.game.Turn() != side {
		return ErrWrongTurn
	}

	now := time.Now()
	var remaining time.Duration
	if cl := session.clock; cl != nil {
		remaining = cl.remaining[side] - now.Sub(cl.turnStart)
		if remaining <= 0 {
			// The flag fell before this move arrived.
			cl.remaining[side] = 0
			c.finishGame(ctx, session, timeoutOutcome(side))
			return ErrSessionEnded
		}
	}

	if err := session.game.Apply(uci); err != nil {
		return err
	}

	session.moves = append(session.moves, uci)
	session.drawOffer = ""
	session.touch(c.idleTimeout)
	if cl := session.clock; cl != nil {
		cl.remaining[side] = remaining + cl.increment
		cl.turnStart = now
		if cl.timer != nil {
			cl.timer.Stop()
			cl.timer.Reset(cl.remaining[side.Opponent()])
		}
	}
	ply := len(session.moves)

	// Durable write off the hot path; the reconciler backstops failures.
	go c.persistMove(sessionId, uci, ply)

	c.publisher.Publish(transport.SessionTopic(sessionId), transport.NewEvent(
		"move_applied",
		dtos.MoveApplied{
			SessionId: sessionId,
			Move:      uci,
			Fen:       session.game.FEN(),
			Moves:     append([]string(nil), session.moves...),
			Turn:      string(session.game.Turn()),
		},
	))

	if outcome, terminal := session.game.Terminal(); terminal {
		c.finishGame(ctx, session, outcome)
	}
	return nil
}

// Resign finishes the session in the opponent's favor.
func (c *Coordinator) Resign(ctx context.Context, sessionId, participantId string) error {
	session, ok := c.sessions.Get(sessionId)
	if !ok {
		return ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != entities.StatusLive {
		return ErrSessionEnded
	}
	side, ok := session.side(participantId)
	if !ok {
		return ErrNotParticipant
	}

	result := rules.WhiteWin
	if side == rules.White {
		result = rules.BlackWin
	}
	c.finishGame(ctx, session, rules.Outcome{
		Result: result,
		Reason: rules.ReasonResignation,
	})
	return nil
}

// OfferDraw records a pending offer. Only drawOffer changes; any move or a
// rejection clears it.
func (c *Coordinator) OfferDraw(sessionId, participantId string) error {
	session, ok := c.sessions.Get(sessionId)
	if !ok {
		return ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != entities.StatusLive {
		return ErrSessionEnded
	}
	side, ok := session.side(participantId)
	if !ok {
		return ErrNotParticipant
	}
	if session.drawOffer == participantId {
		return nil // repeated offer, nothing to change
	}
	session.drawOffer = participantId
	session.touch(c.idleTimeout)

	opponent := session.participantFor(side.Opponent())
	c.publisher.Publish(transport.PlayerTopic(opponent), transport.NewEvent(
		"draw_offered",
		dtos.DrawOffered{SessionId: sessionId, Side: string(side)},
	))
	return nil
}

// RespondDraw accepts or rejects the pending offer from the other side.
func (c *Coordinator) RespondDraw(ctx context.Context, sessionId, participantId string, accept bool) error {
	session, ok := c.sessions.Get(sessionId)
	if !ok {
		return ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != entities.StatusLive {
		return ErrSessionEnded
	}
	if _, ok := session.side(participantId); !ok {
		return ErrNotParticipant
	}
	if session.drawOffer == "" || session.drawOffer == participantId {
		return ErrNoDrawOffer
	}

	offerer := session.drawOffer
	session.drawOffer = ""
	session.touch(c.idleTimeout)

	if !accept {
		c.publisher.Publish(transport.PlayerTopic(offerer), transport.NewEvent(
			"draw_rejected",
			dtos.DrawRejected{SessionId: sessionId},
		))
		return nil
	}
	c.finishGame(ctx, session, rules.Outcome{
		Result: rules.DrawResult,
		Reason: rules.ReasonDrawAgreement,
	})
	return nil
}

// RestoreIfAbsent reinstates a live session from its durable record after a
// restart or eviction. A finished record is returned as-is without
// reinstating live state. A stored history that no longer validates is a
// hard corruption: the record is force-finalized and never resumed.
func (c *Coordinator) RestoreIfAbsent(ctx context.Context, sessionId string) (*Session, entities.SessionRecord, error) {
	if session, ok := c.sessions.Get(sessionId); ok {
		return session, entities.SessionRecord{}, nil
	}

	record, err := c.store.ReadRecord(ctx, sessionId)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, entities.SessionRecord{}, ErrSessionNotFound
		}
		return nil, entities.SessionRecord{}, err
	}
	if record.Status == entities.StatusFinished {
		return nil, record, nil
	}

	game, err := c.validator.Restore(record.Moves)
	if err != nil {
		return nil, entities.SessionRecord{}, c.condemn(ctx, record, err)
	}

	session := newSession(
		record.SessionId,
		record.White,
		record.Black,
		record.TimeControl,
		record.Tournament,
		game,
		append([]string(nil), record.Moves...),
	)
	if insertErr := c.sessions.Insert(session); insertErr != nil {
		// Lost a restore race; the winner's session is authoritative.
		if existing, ok := c.sessions.Get(sessionId); ok {
			return existing, entities.SessionRecord{}, nil
		}
		return nil, entities.SessionRecord{}, insertErr
	}
	c.armTimers(session)

	logging.Info("session restored",
		zap.String("session_id", sessionId),
		zap.Int("moves", len(record.Moves)),
	)
	return session, entities.SessionRecord{}, nil
}

// SessionState resolves the full state for a room join, restoring live
// state first when necessary.
func (c *Coordinator) SessionState(ctx context.Context, sessionId string) (dtos.SessionState, error) {
	session, record, err := c.RestoreIfAbsent(ctx, sessionId)
	if err != nil {
		return dtos.SessionState{}, err
	}
	if session != nil {
		return session.State(), nil
	}
	state := dtos.SessionState{
		SessionId: record.SessionId,
		White:     record.White,
		Black:     record.Black,
		Moves:     append([]string(nil), record.Moves...),
		Status:    string(record.Status),
		Result:    record.Result,
		Reason:    record.Reason,
	}
	// Best effort: a finished record still renders its final position.
	if game, replayErr := c.validator.Restore(record.Moves); replayErr == nil {
		state.Fen = game.FEN()
		state.Turn = string(game.Turn())
	}
	return state, nil
}

// Shutdown drains in-flight durable gates. Live sessions are intentionally
// left LIVE for the recovery path rather than force-finalized.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.gates.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Info("coordinator drained", zap.Int("live_sessions", c.sessions.Len()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finishGame finalizes a terminal session under the session lock. A failed
// durable finalize is an operator concern, not a command failure: the
// triggering command was accepted and broadcast, so the failure goes to the
// admins topic and the reconciler, never back to the player.
func (c *Coordinator) finishGame(ctx context.Context, session *Session, outcome rules.Outcome) {
	if err := c.finishLocked(ctx, session, outcome); err != nil {
		c.publisher.Publish(transport.TopicAdmins, transport.NewEvent(
			"finalize_failed",
			dtos.FinalizeFailureAlert{SessionId: session.Id, Detail: err.Error()},
		))
	}
}

// finishLocked finalizes a terminal session. Caller holds session.mu. The
// durable finalize is the gate for full closure: players are notified
// immediately, but eviction and score propagation wait for the ack; on
// failure the reconciler keeps retrying and ErrFinalizeFailure is returned
// for the caller to report.
func (c *Coordinator) finishLocked(ctx context.Context, session *Session, outcome rules.Outcome) error {
	session.status = entities.StatusFinished
	session.outcome = &outcome
	session.drawOffer = ""
	session.stopIdleTimer()
	session.stopClockTimer()

	c.publisher.Publish(transport.SessionTopic(session.Id), transport.NewEvent(
		"game_over",
		dtos.GameOver{
			SessionId: session.Id,
			Outcome:   string(outcome.Result),
			Reason:    string(outcome.Reason),
		},
	))
	logging.Info("session finished",
		zap.String("session_id", session.Id),
		zap.String("outcome", string(outcome.Result)),
		zap.String("reason", string(outcome.Reason)),
	)

	gateCtx, cancel := context.WithTimeout(ctx, c.gateTimeout)
	defer cancel()
	c.gates.Add(1)
	err := c.store.Finalize(gateCtx, session.Id, string(outcome.Result), string(outcome.Reason))
	c.gates.Done()
	if err != nil {
		logging.Error("finalize failed, queued for retry",
			zap.String("session_id", session.Id),
			zap.Error(err),
		)
		c.recon.enqueueFinish(finishTask{
			sessionId:  session.Id,
			outcome:    outcome,
			tournament: session.Tournament,
		})
		return fmt.Errorf("%w: %v", ErrFinalizeFailure, err)
	}

	c.completeFinish(session.Id, outcome, session.Tournament)
	return nil
}

// completeFinish evicts the session and propagates tournament scoring after
// the durable finalize has been acknowledged.
func (c *Coordinator) completeFinish(sessionId string, outcome rules.Outcome, ref *entities.TournamentRef) {
	c.sessions.Remove(sessionId)
	if ref == nil || outcome.Result == rules.VoidResult {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.gateTimeout)
	defer cancel()
	if err := c.scorer.Propagate(ctx, sessionId, string(outcome.Result)); err != nil {
		logging.Error("score propagation failed, queued for retry",
			zap.String("session_id", sessionId),
			zap.Error(err),
		)
		c.recon.enqueueFinish(finishTask{
			sessionId:  sessionId,
			outcome:    outcome,
			tournament: ref,
			finalized:  true,
		})
	}
}

// condemn force-finalizes a record whose stored history no longer
// validates, so it can never be resumed into an inconsistent state.
func (c *Coordinator) condemn(ctx context.Context, record entities.SessionRecord, cause error) error {
	logging.Error("corrupt session detected",
		zap.String("session_id", record.SessionId),
		zap.Error(cause),
	)
	c.publisher.Publish(transport.TopicAdmins, transport.NewEvent(
		"corrupt_session",
		dtos.CorruptSessionAlert{SessionId: record.SessionId, Detail: cause.Error()},
	))

	gateCtx, cancel := context.WithTimeout(ctx, c.gateTimeout)
	defer cancel()
	if err := c.store.Finalize(
		gateCtx,
		record.SessionId,
		string(rules.VoidResult),
		string(rules.ReasonCorruptRecovery),
	); err != nil {
		logging.Error("failed to finalize corrupt session",
			zap.String("session_id", record.SessionId),
			zap.Error(err),
		)
		c.recon.enqueueFinish(finishTask{
			sessionId: record.SessionId,
			outcome:   rules.Outcome{Result: rules.VoidResult, Reason: rules.ReasonCorruptRecovery},
		})
	}
	return fmt.Errorf("%w: %v", ErrCorruptSession, cause)
}

// expireIdle aborts a session whose idle clock ran out.
func (c *Coordinator) expireIdle(sessionId string) {
	session, ok := c.sessions.Get(sessionId)
	if !ok {
		return
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != entities.StatusLive {
		return
	}
	if remaining := c.idleTimeout - time.Since(session.lastActivityAt); remaining > 0 {
		// Raced with activity; arm for the remainder.
		if session.idleTimer != nil {
			session.idleTimer.Reset(remaining)
		}
		return
	}
	logging.Info("session idle timeout", zap.String("session_id", sessionId))
	c.finishGame(context.Background(), session, rules.Outcome{
		Result: rules.VoidResult,
		Reason: rules.ReasonAbort,
	})
}

// expireClock fires when the side to move should be out of time. Commands
// re-arm the timer, so a fire racing a just-applied move only reschedules.
func (c *Coordinator) expireClock(sessionId string) {
	session, ok := c.sessions.Get(sessionId)
	if !ok {
		return
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status != entities.StatusLive || session.clock == nil {
		return
	}
	side := session.game.Turn()
	cl := session.clock
	if remaining := cl.remaining[side] - time.Since(cl.turnStart); remaining > 0 {
		if cl.timer != nil {
			cl.timer.Reset(remaining)
		}
		return
	}
	cl.remaining[side] = 0
	logging.Info("flag fell",
		zap.String("session_id", sessionId),
		zap.String("side", string(side)),
	)
	c.finishGame(context.Background(), session, timeoutOutcome(side))
}

func (c *Coordinator) armTimers(session *Session) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if c.idleTimeout > 0 {
		session.idleTimer = time.AfterFunc(c.idleTimeout, func() {
			c.expireIdle(session.Id)
		})
	}
	if cl := session.clock; cl != nil {
		cl.turnStart = time.Now()
		cl.timer = time.AfterFunc(cl.remaining[session.game.Turn()], func() {
			c.expireClock(session.Id)
		})
	}
}

// persistMove is the fire-and-forget per-move durable write.
func (c *Coordinator) persistMove(sessionId, uci string, ply int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.gateTimeout)
	defer cancel()
	if err := c.store.AppendMove(ctx, sessionId, uci, ply); err != nil {
		logging.Warn("durable move append failed, marked for resync",
			zap.String("session_id", sessionId),
			zap.Int("ply", ply),
			zap.Error(err),
		)
		c.recon.markDirty(sessionId)
	}
}
