package tournament

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/storage"
	"github.com/tempo-chess/tempo/pkg/logging"
)

// Propagator turns a finished session's result into tournament standings.
// The pairing result and both standings move in one atomic store operation,
// and a pairing that already holds a result is never credited again.
type Propagator struct {
	store storage.TournamentStore
}

func NewPropagator(store storage.TournamentStore) *Propagator {
	return &Propagator{store: store}
}

// Propagate records the result for the pairing tied to sessionId and credits
// both participants. Duplicate deliveries are no-ops. Sessions with no
// pairing are not an error; non-tournament games simply have none.
func (p *Propagator) Propagate(ctx context.Context, sessionId, result string) error {
	pairing, err := p.store.GetPairingBySession(ctx, sessionId)
	if err != nil {
		if errors.Is(err, storage.ErrPairingNotFound) {
			return nil
		}
		return fmt.Errorf("pairing lookup: %w", err)
	}

	credits, err := creditsFor(pairing.White, pairing.Black, result)
	if err != nil {
		return err
	}

	err = p.store.RecordResult(ctx, pairing.TournamentId, pairing.PairingId, result, credits)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyFinalized) {
			logging.Info("pairing result already recorded",
				zap.String("tournament_id", pairing.TournamentId),
				zap.String("pairing_id", pairing.PairingId),
			)
			return nil
		}
		return fmt.Errorf("record result: %w", err)
	}

	logging.Info("tournament result propagated",
		zap.String("tournament_id", pairing.TournamentId),
		zap.String("pairing_id", pairing.PairingId),
		zap.String("session_id", sessionId),
		zap.String("result", result),
	)
	return nil
}

func creditsFor(white, black, result string) ([]storage.PointsCredit, error) {
	switch result {
	case "1-0":
		return []storage.PointsCredit{
			{ParticipantId: white, Points: 1, Wins: 1},
			{ParticipantId: black, Points: 0, Losses: 1},
		}, nil
	case "0-1":
		return []storage.PointsCredit{
			{ParticipantId: white, Points: 0, Losses: 1},
			{ParticipantId: black, Points: 1, Wins: 1},
		}, nil
	case "1/2-1/2":
		return []storage.PointsCredit{
			{ParticipantId: white, Points: 0.5, Draws: 1},
			{ParticipantId: black, Points: 0.5, Draws: 1},
		}, nil
	default:
		return nil, fmt.Errorf("unscorable result %q", result)
	}
}
