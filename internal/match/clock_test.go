package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempo-chess/tempo/internal/domains/entities"
	"github.com/tempo-chess/tempo/internal/rules"
)

func TestParseTimeControl(t *testing.T) {
	tests := []struct {
		input     string
		base      time.Duration
		increment time.Duration
		ok        bool
	}{
		{"5+0", 5 * time.Minute, 0, true},
		{"3+2", 3 * time.Minute, 2 * time.Second, true},
		{"15+10", 15 * time.Minute, 10 * time.Second, true},
		{"0+5", 0, 0, false},
		{"-1+2", 0, 0, false},
		{"3+-1", 0, 0, false},
		{"blitz", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		base, increment, ok := parseTimeControl(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.base, base, tt.input)
		assert.Equal(t, tt.increment, increment, tt.input)
	}
}

func TestUnparsableTimeControlLeavesSessionUntimed(t *testing.T) {
	f := newFixture(Options{})
	session, err := f.coordinator.CreateSession(context.Background(), "alice", "bob", "casual", nil)
	require.NoError(t, err)
	assert.Nil(t, session.clock)
}

func TestMoveCommitsClockAndIncrement(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	session, err := f.coordinator.CreateSession(ctx, "alice", "bob", "3+2", nil)
	require.NoError(t, err)
	require.NotNil(t, session.clock)

	require.NoError(t, f.coordinator.ApplyMove(ctx, session.Id, "alice", "e2e4"))

	session.mu.Lock()
	white := session.clock.remaining[rules.White]
	black := session.clock.remaining[rules.Black]
	session.mu.Unlock()

	// White spent a sliver and banked the increment; black has not moved.
	assert.Greater(t, white, 3*time.Minute)
	assert.LessOrEqual(t, white, 3*time.Minute+2*time.Second)
	assert.Equal(t, 3*time.Minute, black)
}

func TestFlagFallFinishesGameOnTimeout(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	// Burn white's clock down to a sliver and let the timer fire.
	session.mu.Lock()
	session.clock.remaining[rules.White] = 20 * time.Millisecond
	session.clock.turnStart = time.Now()
	session.clock.timer.Reset(20 * time.Millisecond)
	session.mu.Unlock()

	require.Eventually(t, func() bool {
		record, err := f.store.ReadRecord(ctx, session.Id)
		return err == nil && record.Status == entities.StatusFinished
	}, time.Second, 10*time.Millisecond)

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, string(rules.BlackWin), record.Result)
	assert.Equal(t, string(rules.ReasonTimeout), record.Reason)
	_, ok := f.coordinator.sessions.Get(session.Id)
	assert.False(t, ok)
}

func TestLateMoveLosesOnTime(t *testing.T) {
	f := newFixture(Options{})
	session := pairSession(t, f)
	ctx := context.Background()

	// The clock ran dry while the timer was quiet; the move itself must
	// trip the flag instead of landing on the board.
	session.mu.Lock()
	session.clock.remaining[rules.White] = time.Millisecond
	session.clock.turnStart = time.Now().Add(-time.Second)
	session.clock.timer.Stop()
	session.mu.Unlock()

	err := f.coordinator.ApplyMove(ctx, session.Id, "alice", "e2e4")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, 0, session.MoveCount())

	record, err := f.store.ReadRecord(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, string(rules.BlackWin), record.Result)
	assert.Equal(t, string(rules.ReasonTimeout), record.Reason)
}
