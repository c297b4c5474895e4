package match

import (
	"strconv"
	"strings"
	"time"

	"github.com/tempo-chess/tempo/internal/rules"
)

// clockState tracks both players' remaining time. Guarded by the session
// mutex like every other mutable session field. The timer fires when the
// side to move would run out; any command that changes whose clock runs
// re-arms it.
type clockState struct {
	remaining map[rules.Side]time.Duration
	increment time.Duration
	turnStart time.Time
	timer     *time.Timer
}

// parseTimeControl reads "M+S": base minutes plus per-move increment
// seconds. Anything else yields an untimed session.
func parseTimeControl(timeControl string) (base, increment time.Duration, ok bool) {
	parts := strings.Split(timeControl, "+")
	if len(parts) != 2 {
		return 0, 0, false
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || minutes <= 0 {
		return 0, 0, false
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || seconds < 0 {
		return 0, 0, false
	}
	return time.Duration(minutes) * time.Minute, time.Duration(seconds) * time.Second, true
}

func newClockState(timeControl string) *clockState {
	base, increment, ok := parseTimeControl(timeControl)
	if !ok {
		return nil
	}
	return &clockState{
		remaining: map[rules.Side]time.Duration{
			rules.White: base,
			rules.Black: base,
		},
		increment: increment,
	}
}

// timeoutOutcome scores a flag fall against the side whose clock ran out.
func timeoutOutcome(flagged rules.Side) rules.Outcome {
	result := rules.WhiteWin
	if flagged == rules.White {
		result = rules.BlackWin
	}
	return rules.Outcome{Result: result, Reason: rules.ReasonTimeout}
}
