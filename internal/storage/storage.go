// Package storage defines the durable-store boundary. The persistence
// reconciler is the only writer; implementations live in memory (tests,
// local runs) and on DynamoDB.
package storage

import (
	"context"
	"errors"

	"github.com/tempo-chess/tempo/internal/domains/entities"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrPlyMismatch     = errors.New("durable history out of step")
	ErrPairingNotFound = errors.New("pairing not found")
	// ErrAlreadyFinalized guards exactly-once pairing results.
	ErrAlreadyFinalized = errors.New("result already recorded")
)

// SessionStore persists session records and their move histories.
type SessionStore interface {
	// WriteInitial creates the durable record for a new session. It is the
	// gate before a session is advertised as live.
	WriteInitial(ctx context.Context, record entities.SessionRecord) error
	// AppendMove appends one move; ply is the resulting history length.
	// Retried deliveries (durable history already at ply) are a no-op. A gap
	// between ply-1 and the stored history returns ErrPlyMismatch.
	AppendMove(ctx context.Context, sessionId, uci string, ply int) error
	// SyncMoves overwrites the stored history. Reconciler repair path.
	SyncMoves(ctx context.Context, sessionId string, moves []string) error
	// Finalize marks the record FINISHED with its outcome. Idempotent.
	Finalize(ctx context.Context, sessionId, result, reason string) error
	ReadRecord(ctx context.Context, sessionId string) (entities.SessionRecord, error)
}

// PointsCredit is one standings delta applied with a pairing result.
type PointsCredit struct {
	ParticipantId string
	Points        float64
	Wins          int
	Draws         int
	Losses        int
}

// TournamentStore persists pairings and standings.
type TournamentStore interface {
	GetPairingBySession(ctx context.Context, sessionId string) (entities.TournamentPairing, error)
	// RecordResult writes the pairing result and credits points in one
	// atomic step. Returns ErrAlreadyFinalized when the result is no longer
	// pending; in that case nothing is credited.
	RecordResult(ctx context.Context, tournamentId, pairingId, result string, credits []PointsCredit) error
	GetStanding(ctx context.Context, tournamentId, participantId string) (entities.TournamentStanding, error)
}
