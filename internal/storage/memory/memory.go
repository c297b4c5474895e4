// Package memory implements the storage interfaces on process-local maps.
// Used by tests and local runs without AWS credentials.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tempo-chess/tempo/internal/domains/entities"
	"github.com/tempo-chess/tempo/internal/storage"
)

type Store struct {
	mu        sync.Mutex
	sessions  map[string]entities.SessionRecord
	pairings  map[string]entities.TournamentPairing
	bySession map[string]string
	standings map[string]entities.TournamentStanding
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]entities.SessionRecord),
		pairings:  make(map[string]entities.TournamentPairing),
		bySession: make(map[string]string),
		standings: make(map[string]entities.TournamentStanding),
	}
}

func (s *Store) WriteInitial(_ context.Context, record entities.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[record.SessionId]; ok {
		return storage.ErrAlreadyExists
	}
	record.Moves = append([]string(nil), record.Moves...)
	s.sessions[record.SessionId] = record
	return nil
}

func (s *Store) AppendMove(_ context.Context, sessionId, uci string, ply int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionId]
	if !ok {
		return storage.ErrRecordNotFound
	}
	switch {
	case len(record.Moves) >= ply:
		return nil // retried delivery
	case len(record.Moves) != ply-1:
		return storage.ErrPlyMismatch
	}
	record.Moves = append(record.Moves, uci)
	record.UpdatedAt = time.Now()
	s.sessions[sessionId] = record
	return nil
}

func (s *Store) SyncMoves(_ context.Context, sessionId string, moves []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionId]
	if !ok {
		return storage.ErrRecordNotFound
	}
	record.Moves = append([]string(nil), moves...)
	record.UpdatedAt = time.Now()
	s.sessions[sessionId] = record
	return nil
}

func (s *Store) Finalize(_ context.Context, sessionId, result, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionId]
	if !ok {
		return storage.ErrRecordNotFound
	}
	if record.Status == entities.StatusFinished {
		return nil
	}
	record.Status = entities.StatusFinished
	record.Result = result
	record.Reason = reason
	record.UpdatedAt = time.Now()
	s.sessions[sessionId] = record
	return nil
}

func (s *Store) ReadRecord(_ context.Context, sessionId string) (entities.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionId]
	if !ok {
		return entities.SessionRecord{}, storage.ErrRecordNotFound
	}
	record.Moves = append([]string(nil), record.Moves...)
	return record, nil
}

// PutPairing seeds a pairing. Pairing creation itself belongs to the
// tournament admin collaborator, not this core.
func (s *Store) PutPairing(pairing entities.TournamentPairing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pairing.Result == "" {
		pairing.Result = entities.ResultPending
	}
	s.pairings[pairingKey(pairing.TournamentId, pairing.PairingId)] = pairing
	if pairing.SessionId != "" {
		s.bySession[pairing.SessionId] = pairingKey(pairing.TournamentId, pairing.PairingId)
	}
}

func (s *Store) GetPairingBySession(_ context.Context, sessionId string) (entities.TournamentPairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.bySession[sessionId]
	if !ok {
		return entities.TournamentPairing{}, storage.ErrPairingNotFound
	}
	return s.pairings[key], nil
}

func (s *Store) RecordResult(_ context.Context, tournamentId, pairingId, result string, credits []storage.PointsCredit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairingKey(tournamentId, pairingId)
	pairing, ok := s.pairings[key]
	if !ok {
		return storage.ErrPairingNotFound
	}
	if pairing.Result != entities.ResultPending {
		return storage.ErrAlreadyFinalized
	}
	pairing.Result = result
	pairing.UpdatedAt = time.Now()
	s.pairings[key] = pairing
	for _, credit := range credits {
		sk := standingKey(tournamentId, credit.ParticipantId)
		standing, ok := s.standings[sk]
		if !ok {
			standing = entities.TournamentStanding{
				TournamentId:  tournamentId,
				ParticipantId: credit.ParticipantId,
			}
		}
		standing.Points += credit.Points
		standing.Wins += credit.Wins
		standing.Draws += credit.Draws
		standing.Losses += credit.Losses
		standing.UpdatedAt = time.Now()
		s.standings[sk] = standing
	}
	return nil
}

func (s *Store) GetStanding(_ context.Context, tournamentId, participantId string) (entities.TournamentStanding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	standing, ok := s.standings[standingKey(tournamentId, participantId)]
	if !ok {
		return entities.TournamentStanding{}, storage.ErrRecordNotFound
	}
	return standing, nil
}

func pairingKey(tournamentId, pairingId string) string {
	return tournamentId + "/" + pairingId
}

func standingKey(tournamentId, participantId string) string {
	return tournamentId + "/" + participantId
}
