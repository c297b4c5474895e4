package rules

import (
	"fmt"

	"github.com/notnil/chess"
)

// chessValidator backs the Validator interface with notnil/chess.
type chessValidator struct{}

func NewChessValidator() Validator {
	return chessValidator{}
}

func (chessValidator) New() Game {
	return &chessGame{game: newUCIGame()}
}

func (chessValidator) Restore(moves []string) (Game, error) {
	g := &chessGame{game: newUCIGame()}
	for i, uci := range moves {
		if err := g.Apply(uci); err != nil {
			return nil, &ReplayError{Ply: i + 1, Move: uci, Err: err}
		}
	}
	return g, nil
}

func newUCIGame() *chess.Game {
	return chess.NewGame(chess.UseNotation(chess.UCINotation{}))
}

type chessGame struct {
	game  *chess.Game
	moves []string
}

func (g *chessGame) FEN() string {
	return g.game.Position().String()
}

func (g *chessGame) Turn() Side {
	if g.game.Position().Turn() == chess.White {
		return White
	}
	return Black
}

func (g *chessGame) Apply(uci string) error {
	if err := g.game.MoveStr(uci); err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	g.moves = append(g.moves, uci)
	// Threefold is claim-based in the engine; the platform claims it
	// automatically so repetition is a terminal condition like any other.
	for _, method := range g.game.EligibleDraws() {
		if method == chess.ThreefoldRepetition {
			g.game.Draw(chess.ThreefoldRepetition)
			break
		}
	}
	return nil
}

func (g *chessGame) LegalMoves() []string {
	valid := g.game.ValidMoves()
	moves := make([]string, 0, len(valid))
	for _, m := range valid {
		moves = append(moves, m.String())
	}
	return moves
}

func (g *chessGame) Terminal() (Outcome, bool) {
	outcome := g.game.Outcome()
	if outcome == chess.NoOutcome {
		return Outcome{}, false
	}
	result := DrawResult
	switch outcome {
	case chess.WhiteWon:
		result = WhiteWin
	case chess.BlackWon:
		result = BlackWin
	}
	return Outcome{Result: result, Reason: reasonForMethod(g.game.Method())}, true
}

func (g *chessGame) Moves() []string {
	moves := make([]string, len(g.moves))
	copy(moves, g.moves)
	return moves
}

func reasonForMethod(method chess.Method) Reason {
	switch method {
	case chess.Checkmate:
		return ReasonCheckmate
	case chess.Stalemate:
		return ReasonStalemate
	case chess.InsufficientMaterial:
		return ReasonInsufficientMaterial
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return ReasonRepetition
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return ReasonFiftyMoveRule
	default:
		return ReasonAbort
	}
}
