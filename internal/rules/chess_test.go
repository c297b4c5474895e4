package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTracksTurnAndHistory(t *testing.T) {
	game := NewChessValidator().New()

	assert.Equal(t, White, game.Turn())
	require.NoError(t, game.Apply("e2e4"))
	assert.Equal(t, Black, game.Turn())
	assert.Equal(t, []string{"e2e4"}, game.Moves())

	_, terminal := game.Terminal()
	assert.False(t, terminal)
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	game := NewChessValidator().New()

	err := game.Apply("e2e5")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalMove)
	assert.Empty(t, game.Moves())
	assert.Equal(t, White, game.Turn())
}

func TestCheckmateIsTerminal(t *testing.T) {
	game := NewChessValidator().New()
	for _, uci := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		require.NoError(t, game.Apply(uci))
	}

	outcome, terminal := game.Terminal()
	require.True(t, terminal)
	assert.Equal(t, BlackWin, outcome.Result)
	assert.Equal(t, ReasonCheckmate, outcome.Reason)
}

func TestThreefoldRepetitionClaimedAutomatically(t *testing.T) {
	game := NewChessValidator().New()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	for i := 0; i < 2; i++ {
		for _, uci := range shuffle {
			require.NoError(t, game.Apply(uci))
		}
	}

	outcome, terminal := game.Terminal()
	require.True(t, terminal)
	assert.Equal(t, DrawResult, outcome.Result)
	assert.Equal(t, ReasonRepetition, outcome.Reason)
}

func TestRestoreReproducesPosition(t *testing.T) {
	validator := NewChessValidator()
	moves := []string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4", "c5d4"}

	reference := validator.New()
	for _, uci := range moves {
		require.NoError(t, reference.Apply(uci))
	}

	restored, err := validator.Restore(moves)
	require.NoError(t, err)
	assert.Equal(t, reference.FEN(), restored.FEN())
	assert.Equal(t, reference.Turn(), restored.Turn())
	assert.Equal(t, moves, restored.Moves())
}

func TestRestoreReportsOffendingPly(t *testing.T) {
	validator := NewChessValidator()

	_, err := validator.Restore([]string{"e2e4", "e7e5", "e4e6"})
	require.Error(t, err)

	var replayErr *ReplayError
	require.True(t, errors.As(err, &replayErr))
	assert.Equal(t, 3, replayErr.Ply)
	assert.Equal(t, "e4e6", replayErr.Move)
	assert.ErrorIs(t, err, ErrIllegalMove)
}
