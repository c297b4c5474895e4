package match

import (
	"sync"
	"time"

	"github.com/tempo-chess/tempo/internal/domains/dtos"
	"github.com/tempo-chess/tempo/internal/domains/entities"
	"github.com/tempo-chess/tempo/internal/rules"
)

// Session is one authoritative live game. All mutation happens under mu:
// the coordinator takes the lock for the whole command, so a session never
// processes two commands concurrently. Cross-session commands share nothing.
type Session struct {
	Id          string
	White       string
	Black       string
	TimeControl string
	Tournament  *entities.TournamentRef
	CreatedAt   time.Time

	mu             sync.Mutex
	game           rules.Game
	moves          []string
	status         entities.SessionStatus
	outcome        *rules.Outcome
	drawOffer      string
	lastActivityAt time.Time
	idleTimer      *time.Timer
	clock          *clockState
}

func newSession(
	id, white, black, timeControl string,
	tournament *entities.TournamentRef,
	game rules.Game,
	moves []string,
) *Session {
	return &Session{
		Id:             id,
		White:          white,
		Black:          black,
		TimeControl:    timeControl,
		Tournament:     tournament,
		CreatedAt:      time.Now(),
		game:           game,
		moves:          moves,
		status:         entities.StatusLive,
		lastActivityAt: time.Now(),
		clock:          newClockState(timeControl),
	}
}

// side resolves which color the participant plays.
func (s *Session) side(participantId string) (rules.Side, bool) {
	switch participantId {
	case s.White:
		return rules.White, true
	case s.Black:
		return rules.Black, true
	default:
		return "", false
	}
}

func (s *Session) participantFor(side rules.Side) string {
	if side == rules.White {
		return s.White
	}
	return s.Black
}

// touch records activity and restarts the idle clock. Caller holds mu.
func (s *Session) touch(idleTimeout time.Duration) {
	s.lastActivityAt = time.Now()
	if s.idleTimer != nil && idleTimeout > 0 {
		s.idleTimer.Reset(idleTimeout)
	}
}

// stopIdleTimer halts the idle clock on termination. Caller holds mu.
func (s *Session) stopIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Session) stopClockTimer() {
	if s.clock != nil && s.clock.timer != nil {
		s.clock.timer.Stop()
		s.clock.timer = nil
	}
}

// stateLocked snapshots the session for a session_state reply. Caller
// holds mu.
func (s *Session) stateLocked() dtos.SessionState {
	state := dtos.SessionState{
		SessionId: s.Id,
		White:     s.White,
		Black:     s.Black,
		Fen:       s.game.FEN(),
		Moves:     append([]string(nil), s.moves...),
		Turn:      string(s.game.Turn()),
		Status:    string(s.status),
	}
	if s.outcome != nil {
		state.Result = string(s.outcome.Result)
		state.Reason = string(s.outcome.Reason)
	}
	if s.drawOffer != "" {
		if side, ok := s.side(s.drawOffer); ok {
			state.DrawOffer = string(side)
		}
	}
	return state
}

// State snapshots the session for external readers.
func (s *Session) State() dtos.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// MoveCount reports the applied history length.
func (s *Session) MoveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.moves)
}

// MovesSnapshot copies the applied history.
func (s *Session) MovesSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.moves...)
}

// Status reports the lifecycle state.
func (s *Session) Status() entities.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Outcome returns the terminal outcome once FINISHED.
func (s *Session) Outcome() (rules.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return rules.Outcome{}, false
	}
	return *s.outcome, true
}
