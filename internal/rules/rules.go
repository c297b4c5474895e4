// Package rules wraps the chess rules engine behind a narrow validator
// interface. The coordinator never touches engine types directly, so the
// engine stays a swappable black box.
package rules

import (
	"errors"
	"fmt"
)

type Side string

const (
	White Side = "white"
	Black Side = "black"
)

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

// Result is the scoreline of a finished game.
type Result string

const (
	WhiteWin   Result = "1-0"
	BlackWin   Result = "0-1"
	DrawResult Result = "1/2-1/2"
	// VoidResult marks aborted games that produce no score.
	VoidResult Result = "*"
)

// Reason tags how a game reached its result.
type Reason string

const (
	ReasonCheckmate            Reason = "checkmate"
	ReasonStalemate            Reason = "stalemate"
	ReasonInsufficientMaterial Reason = "insufficient-material"
	ReasonRepetition           Reason = "repetition"
	ReasonFiftyMoveRule        Reason = "fifty-move-rule"
	ReasonResignation          Reason = "resignation"
	ReasonDrawAgreement        Reason = "draw-agreement"
	ReasonTimeout              Reason = "timeout"
	ReasonAbort                Reason = "abort"
	ReasonCorruptRecovery      Reason = "corrupt-recovery"
)

type Outcome struct {
	Result Result
	Reason Reason
}

// ErrIllegalMove is returned by Game.Apply when the move does not parse or
// is not legal in the current position.
var ErrIllegalMove = errors.New("illegal move")

// Game is one live rules-state. Implementations are not safe for concurrent
// use; the owning session serializes access.
type Game interface {
	// FEN renders the current position.
	FEN() string
	// Turn reports the side to move.
	Turn() Side
	// Apply plays one move in UCI notation, mutating the position.
	Apply(uci string) error
	// LegalMoves lists the legal moves in UCI notation.
	LegalMoves() []string
	// Terminal reports a rules-detected end state, if any.
	Terminal() (Outcome, bool)
	// Moves returns the applied move list in UCI notation.
	Moves() []string
}

// Validator creates games and reconstructs them from stored histories.
type Validator interface {
	New() Game
	// Restore replays moves from the initial position. A move that no longer
	// validates aborts the replay with an error naming the offending ply.
	Restore(moves []string) (Game, error)
}

// ReplayError reports the ply at which a stored history stopped validating.
type ReplayError struct {
	Ply  int
	Move string
	Err  error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay failed at ply %d (%s): %v", e.Ply, e.Move, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }
