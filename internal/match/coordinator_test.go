package match

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempo-chess/tempo/internal/domains/entities"
	"github.com/tempo-chess/tempo/internal/rules"
	"github.com/tempo-chess/tempo/internal/storage/memory"
	"github.com/tempo-chess/tempo/internal/tournament"
	"github.com/tempo-chess/tempo/internal/transport"
)

type publishedEvent struct {
	Topic string
	Event transport.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(topic string, event transport.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Event: event})
}

func (p *recordingPublisher) find(topic, eventType string) (publishedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Topic == topic && e.Event.Type == eventType {
			return e, true
		}
	}
	return publishedEvent{}, false
}

// flakyStore injects durable write failures and stalls around the
// in-memory store.
type flakyStore struct {
	*memory.Store
	failWriteInitial bool
	failFinalize     bool

	// When set, WriteInitial parks on the channel so a test can hold a
	// session creation open mid-flight.
	gateWriteInitial chan struct{}
	gateEntered      atomic.Bool
}

func (s *flakyStore) WriteInitial(ctx context.Context, record entities.SessionRecord) error {
	if s.failWriteInitial {
		return errors.New("store unavailable")
	}
	if s.gateWriteInitial != nil {
		s.gateEntered.Store(true)
		<-s.gateWriteInitial
	}
	return s.Store.WriteInitial(ctx, record)
}

func (s *flakyStore) Finalize(ctx context.Context, sessionId, result, reason string) error {
	if s.failFinalize {
		return errors.New("store unavailable")
	}
	return s.Store.Finalize(ctx, sessionId, result, reason)
}

type fixture struct {
	coordinator *Coordinator
	store       *flakyStore
	publisher   *recordingPublisher
}

func newFixture(opts Options) *fixture {
	store := &flakyStore{Store: memory.NewStore()}
	publisher := &recordingPublisher{}
	coordinator := NewCoordinator(
		NewStore(),
		NewQueue(),
		store,
		rules.NewChessValidator(),
		publisher,
		tournament.NewPropagator(store.Store),
		opts,
	)
	return &fixture{coordinator: coordinator, store: store, publisher: publisher}
}

func pairSession(t *testing.T, f *fixture) *Session {
	t.Helper()
	ctx := context.Background()

	state, _, err := f.coordinator.JoinMatchmaking(ctx, "alice", "5+0", 1500)
	require.NoError(t, err)
	require.Equal(t, JoinWaiting, state)

	state, session, err := f.coordinator.JoinMatchmaking(ctx, "bob", "5+0", 1520)
	require.NoError(t, err)
	require.Equal(t, JoinMatched, state)
	require.NotNil(t, session)
	return session
}

func TestJoinMatchmakingPairsPlayers(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)

	// Earlier-joined waiter takes white.
	assert.Equal(t, "alice", session.White)
	assert.Equal(t, "bob", session.Black)

	record, err := f.store.ReadRecord(context.Background(), session.Id)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusLive, record.Status)
	assert.Empty(t, record.Moves)

	_, ok := f.publisher.find(transport.PlayerTopic("alice"), "match_found")
	assert.True(t, ok)
	_, ok = f.publisher.find(transport.PlayerTopic("bob"), "match_found")
	assert.True(t, ok)
	assert.Equal(t, 0, f.coordinator.queue.Len())
}

func TestJoinMatchmakingRejectsActiveParticipant(t *testing.T) {
	f := newFixture(Options{})
	pairSession(t, f)

	_, _, err := f.coordinator.JoinMatchmaking(context.Background(), "alice", "5+0", 1500)
	assert.ErrorIs(t, err, ErrAlreadyInSession)
}

func TestCreationFailureRequeuesConsumedWaiter(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	_, _, err := f.coordinator.JoinMatchmaking(ctx, "alice", "5+0", 1500)
	require.NoError(t, err)

	f.store.failWriteInitial = true
	_, _, err = f.coordinator.JoinMatchmaking(ctx, "bob", "5+0", 1520)
	require.ErrorIs(t, err, ErrCreationFailure)

	// The consumed waiter is back at the head; nobody is stranded.
	assert.True(t, f.coordinator.queue.Waiting("alice"))
	assert.False(t, f.coordinator.queue.Waiting("bob"))

	f.store.failWriteInitial = false
	state, session, err := f.coordinator.JoinMatchmaking(ctx, "carol", "5+0", 1480)
	require.NoError(t, err)
	require.Equal(t, JoinMatched, state)
	assert.Equal(t, "alice", session.White)
}

func TestConsumedWaiterCannotRejoinDuringCreation(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	_, _, err := f.coordinator.JoinMatchmaking(ctx, "alice", "5+0", 1500)
	require.NoError(t, err)

	// Hold bob's session creation open inside the durable write.
	gate := make(chan struct{})
	f.store.gateWriteInitial = gate

	done := make(chan error, 1)
	go func() {
		_, _, err := f.coordinator.JoinMatchmaking(ctx, "bob", "5+0", 1520)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.store.gateEntered.Load()
	}, time.Second, time.Millisecond)

	// Alice's ticket is consumed but her session is not visible yet; she
	// must neither wait nor match a second time.
	_, _, err = f.coordinator.JoinMatchmaking(ctx, "alice", "5+0", 1500)
	assert.ErrorIs(t, err, ErrAlreadyInSession)

	state, _, err := f.coordinator.JoinMatchmaking(ctx, "carol", "5+0", 1480)
	require.NoError(t, err)
	assert.Equal(t, JoinWaiting, state)

	close(gate)
	require.NoError(t, <-done)

	session, ok := f.coordinator.sessions.ForParticipant("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", session.Black)
	assert.Equal(t, 1, f.coordinator.sessions.Len())
}

func TestCreateSessionRejectsBusyParticipant(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	_, err := f.coordinator.CreateSession(ctx, "alice", "bob", "5+0", nil)
	require.NoError(t, err)

	_, err = f.coordinator.CreateSession(ctx, "alice", "dan", "5+0", nil)
	require.ErrorIs(t, err, ErrCreationFailure)
	_, ok := f.coordinator.sessions.ForParticipant("dan")
	assert.False(t, ok)
}

func TestApplyMoveEnforcesTurnAndMembership(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	err := f.coordinator.ApplyMove(ctx, session.Id, "bob", "e7e5")
	assert.ErrorIs(t, err, ErrWrongTurn)

	err = f.coordinator.ApplyMove(ctx, session.Id, "mallory", "e2e4")
	assert.ErrorIs(t, err, ErrNotParticipant)

	err = f.coordinator.ApplyMove(ctx, session.Id, "alice", "e2e5")
	assert.ErrorIs(t, err, rules.ErrIllegalMove)
	assert.Equal(t, 0, session.MoveCount())

	err = f.coordinator.ApplyMove(ctx, "no-such-session", "alice", "e2e4")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestApplyMovePersistsAsynchronously(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	moves := []string{"e2e4", "c7c5", "g1f3"}
	players := []string{"alice", "bob", "alice"}
	for i, uci := range moves {
		require.NoError(t, f.coordinator.ApplyMove(ctx, session.Id, players[i], uci))
	}

	require.Eventually(t, func() bool {
		record, err := f.store.ReadRecord(ctx, session.Id)
		return err == nil && len(record.Moves) == len(moves)
	}, time.Second, 10*time.Millisecond)

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, moves, record.Moves)
}

func TestCheckmateFinalizesAndEvicts(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	moves := []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	players := []string{"alice", "bob", "alice", "bob"}
	for i, uci := range moves {
		require.NoError(t, f.coordinator.ApplyMove(ctx, session.Id, players[i], uci))
	}

	_, ok := f.coordinator.sessions.Get(session.Id)
	assert.False(t, ok, "finished session must be evicted")

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFinished, record.Status)
	assert.Equal(t, "0-1", record.Result)
	assert.Equal(t, "checkmate", record.Reason)

	event, ok := f.publisher.find(transport.SessionTopic(session.Id), "game_over")
	require.True(t, ok)
	assert.Contains(t, string(event.Event.Data), "0-1")

	err = f.coordinator.ApplyMove(ctx, session.Id, "alice", "e2e4")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResignFinishesInOpponentsFavor(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	require.NoError(t, f.coordinator.Resign(ctx, session.Id, "alice"))

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, "0-1", record.Result)
	assert.Equal(t, "resignation", record.Reason)
}

func TestDrawOfferAcceptAndReject(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	// No pending offer yet.
	err := f.coordinator.RespondDraw(ctx, session.Id, "bob", true)
	assert.ErrorIs(t, err, ErrNoDrawOffer)

	require.NoError(t, f.coordinator.OfferDraw(session.Id, "alice"))
	_, ok := f.publisher.find(transport.PlayerTopic("bob"), "draw_offered")
	assert.True(t, ok)

	// The offerer cannot answer their own offer.
	err = f.coordinator.RespondDraw(ctx, session.Id, "alice", true)
	assert.ErrorIs(t, err, ErrNoDrawOffer)

	// Rejection clears the offer.
	require.NoError(t, f.coordinator.RespondDraw(ctx, session.Id, "bob", false))
	_, ok = f.publisher.find(transport.PlayerTopic("alice"), "draw_rejected")
	assert.True(t, ok)
	err = f.coordinator.RespondDraw(ctx, session.Id, "bob", true)
	assert.ErrorIs(t, err, ErrNoDrawOffer)

	require.NoError(t, f.coordinator.OfferDraw(session.Id, "bob"))
	require.NoError(t, f.coordinator.RespondDraw(ctx, session.Id, "alice", true))

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, "1/2-1/2", record.Result)
	assert.Equal(t, "draw-agreement", record.Reason)
}

func TestMoveClearsPendingDrawOffer(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	require.NoError(t, f.coordinator.OfferDraw(session.Id, "bob"))
	require.NoError(t, f.coordinator.ApplyMove(ctx, session.Id, "alice", "e2e4"))

	err := f.coordinator.RespondDraw(ctx, session.Id, "alice", true)
	assert.ErrorIs(t, err, ErrNoDrawOffer)
}

func TestRestoreIfAbsentReplaysHistory(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	moves := []string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4", "c5d4"}
	require.NoError(t, f.store.WriteInitial(ctx, entities.SessionRecord{
		SessionId:   "restored",
		White:       "alice",
		Black:       "bob",
		TimeControl: "5+0",
		Status:      entities.StatusLive,
	}))
	require.NoError(t, f.store.SyncMoves(ctx, "restored", moves))

	session, _, err := f.coordinator.RestoreIfAbsent(ctx, "restored")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, len(moves), session.MoveCount())

	// White is to move after six plies; play continues seamlessly.
	require.NoError(t, f.coordinator.ApplyMove(ctx, session.Id, "alice", "f3d4"))
	assert.Equal(t, 7, session.MoveCount())

	// Restoring again returns the live session, not a second replay.
	again, _, err := f.coordinator.RestoreIfAbsent(ctx, "restored")
	require.NoError(t, err)
	assert.Same(t, session, again)
}

func TestRestoreIfAbsentLeavesFinishedRecordsAlone(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	require.NoError(t, f.store.WriteInitial(ctx, entities.SessionRecord{
		SessionId: "done",
		White:     "alice",
		Black:     "bob",
		Status:    entities.StatusLive,
	}))
	require.NoError(t, f.store.Finalize(ctx, "done", "1-0", "checkmate"))

	session, record, err := f.coordinator.RestoreIfAbsent(ctx, "done")
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, "1-0", record.Result)
	_, ok := f.coordinator.sessions.Get("done")
	assert.False(t, ok)
}

func TestRestoreIfAbsentUnknownSession(t *testing.T) {
	f := newFixture(Options{})

	_, _, err := f.coordinator.RestoreIfAbsent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCorruptRecordIsCondemned(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	require.NoError(t, f.store.WriteInitial(ctx, entities.SessionRecord{
		SessionId: "corrupt",
		White:     "alice",
		Black:     "bob",
		Status:    entities.StatusLive,
	}))
	require.NoError(t, f.store.SyncMoves(ctx, "corrupt", []string{"e2e4", "e2e4"}))

	_, _, err := f.coordinator.RestoreIfAbsent(ctx, "corrupt")
	require.ErrorIs(t, err, ErrCorruptSession)

	record, readErr := f.store.ReadRecord(ctx, "corrupt")
	require.NoError(t, readErr)
	assert.Equal(t, entities.StatusFinished, record.Status)
	assert.Equal(t, "*", record.Result)
	assert.Equal(t, "corrupt-recovery", record.Reason)

	_, ok := f.publisher.find(transport.TopicAdmins, "corrupt_session")
	assert.True(t, ok)
	_, ok = f.coordinator.sessions.Get("corrupt")
	assert.False(t, ok)
}

func TestFinalizeFailureRetriedByReconciler(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	f.store.failFinalize = true

	// The resignation stands even though the durable finalize failed; the
	// failure is surfaced to operators, not to the acting player.
	require.NoError(t, f.coordinator.Resign(ctx, session.Id, "bob"))
	_, alerted := f.publisher.find(transport.TopicAdmins, "finalize_failed")
	assert.True(t, alerted)

	// Session stays loaded, refusing further play, until the record is durable.
	assert.Equal(t, entities.StatusFinished, session.Status())
	err := f.coordinator.ApplyMove(ctx, session.Id, "alice", "e2e4")
	assert.ErrorIs(t, err, ErrSessionEnded)

	f.store.failFinalize = false
	f.coordinator.recon.pass(ctx)

	record, readErr := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, readErr)
	assert.Equal(t, entities.StatusFinished, record.Status)
	assert.Equal(t, "1-0", record.Result)
	_, ok := f.coordinator.sessions.Get(session.Id)
	assert.False(t, ok)
}

func TestReconcilerRepairsLaggingHistory(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	moves := []string{"e2e4", "c7c5", "g1f3"}
	players := []string{"alice", "bob", "alice"}
	for i, uci := range moves {
		require.NoError(t, f.coordinator.ApplyMove(ctx, session.Id, players[i], uci))
	}
	require.Eventually(t, func() bool {
		record, err := f.store.ReadRecord(ctx, session.Id)
		return err == nil && len(record.Moves) == len(moves)
	}, time.Second, 10*time.Millisecond)

	// Durable history falls behind; the sweep restores it from live state.
	require.NoError(t, f.store.SyncMoves(ctx, session.Id, moves[:1]))
	f.coordinator.recon.pass(ctx)

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, moves, record.Moves)
}

func TestIdleSessionAborted(t *testing.T) {
	f := newFixture(Options{IdleTimeout: 30 * time.Millisecond})
	session := pairSession(t, f)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		record, err := f.store.ReadRecord(ctx, session.Id)
		return err == nil && record.Status == entities.StatusFinished
	}, time.Second, 10*time.Millisecond)

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, "*", record.Result)
	assert.Equal(t, "abort", record.Reason)
	_, ok := f.coordinator.sessions.Get(session.Id)
	assert.False(t, ok)
}

func TestTournamentSessionPropagatesScore(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	ref := &entities.TournamentRef{TournamentId: "open-2026", PairingId: "r1-b3"}
	session, err := f.coordinator.CreateSession(ctx, "alice", "bob", "5+0", ref)
	require.NoError(t, err)

	f.store.PutPairing(entities.TournamentPairing{
		TournamentId: "open-2026",
		PairingId:    "r1-b3",
		White:        "alice",
		Black:        "bob",
		SessionId:    session.Id,
	})

	require.NoError(t, f.coordinator.Resign(ctx, session.Id, "bob"))

	standing, err := f.store.GetStanding(ctx, "open-2026", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1.0, standing.Points)
	assert.Equal(t, 1, standing.Wins)

	standing, err = f.store.GetStanding(ctx, "open-2026", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0.0, standing.Points)
	assert.Equal(t, 1, standing.Losses)

	pairing, err := f.store.GetPairingBySession(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, "1-0", pairing.Result)
}

func TestSessionStateForFinishedRecord(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	require.NoError(t, f.store.WriteInitial(ctx, entities.SessionRecord{
		SessionId: "archived",
		White:     "alice",
		Black:     "bob",
		Status:    entities.StatusLive,
	}))
	require.NoError(t, f.store.SyncMoves(ctx, "archived", []string{"f2f3", "e7e5", "g2g4", "d8h4"}))
	require.NoError(t, f.store.Finalize(ctx, "archived", "0-1", "checkmate"))

	state, err := f.coordinator.SessionState(ctx, "archived")
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", state.Status)
	assert.Equal(t, "0-1", state.Result)
	assert.Len(t, state.Moves, 4)
	assert.NotEmpty(t, state.Fen)
}
