package match

import (
	"sync"
	"time"

	"github.com/tempo-chess/tempo/internal/domains/entities"
)

type JoinState string

const (
	JoinWaiting JoinState = "waiting"
	JoinMatched JoinState = "matched"
	// JoinBlocked: the participant is reserved by an in-flight pairing and
	// cannot queue until that session creation resolves.
	JoinBlocked JoinState = "blocked"
)

// JoinResult reports what a queue join did. On JoinMatched the opponent's
// entry has been consumed in the same critical section.
type JoinResult struct {
	State    JoinState
	Ticket   entities.WaitingPlayer
	Opponent *entities.WaitingPlayer
}

// Queue is the matchmaking waiting list, FIFO within each compatibility key.
// Join, Cancel and Requeue each run as one critical section so the same
// waiter can never be consumed by two concurrent joins. A matched pair is
// reserved in pending within that same critical section, so neither
// participant can re-queue during the gap between consuming the tickets and
// the session becoming live.
type Queue struct {
	mu            sync.Mutex
	buckets       map[string][]*entities.WaitingPlayer
	byParticipant map[string]*entities.WaitingPlayer
	pending       map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{
		buckets:       make(map[string][]*entities.WaitingPlayer),
		byParticipant: make(map[string]*entities.WaitingPlayer),
		pending:       make(map[string]struct{}),
	}
}

// Join pairs the participant with the earliest compatible waiter, or
// enqueues them. A participant already queued gets their existing wait state
// back unchanged (idempotent).
func (q *Queue) Join(participantId, timeControl string, rating float64) JoinResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[participantId]; ok {
		return JoinResult{State: JoinBlocked}
	}
	if existing, ok := q.byParticipant[participantId]; ok {
		return JoinResult{State: JoinWaiting, Ticket: *existing}
	}

	bucket := q.buckets[timeControl]
	if len(bucket) > 0 {
		opponent := bucket[0]
		q.buckets[timeControl] = bucket[1:]
		delete(q.byParticipant, opponent.ParticipantId)
		q.pending[opponent.ParticipantId] = struct{}{}
		q.pending[participantId] = struct{}{}
		ticket := entities.WaitingPlayer{
			ParticipantId: participantId,
			TimeControl:   timeControl,
			Rating:        rating,
			EnqueuedAt:    time.Now(),
		}
		return JoinResult{State: JoinMatched, Ticket: ticket, Opponent: opponent}
	}

	ticket := &entities.WaitingPlayer{
		ParticipantId: participantId,
		TimeControl:   timeControl,
		Rating:        rating,
		EnqueuedAt:    time.Now(),
	}
	q.buckets[timeControl] = append(bucket, ticket)
	q.byParticipant[participantId] = ticket
	return JoinResult{State: JoinWaiting, Ticket: *ticket}
}

// Cancel removes the participant's entry if present. Cancelling a
// never-queued participant is not an error.
func (q *Queue) Cancel(participantId string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	ticket, ok := q.byParticipant[participantId]
	if !ok {
		return false
	}
	delete(q.byParticipant, participantId)
	bucket := q.buckets[ticket.TimeControl]
	for i, entry := range bucket {
		if entry.ParticipantId == participantId {
			q.buckets[ticket.TimeControl] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(q.buckets[ticket.TimeControl]) == 0 {
		delete(q.buckets, ticket.TimeControl)
	}
	return true
}

// Requeue puts a consumed waiter back at the head of its bucket, releasing
// its pairing reservation. Rollback path for a session creation that failed
// after matching.
func (q *Queue) Requeue(ticket *entities.WaitingPlayer) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.pending, ticket.ParticipantId)
	if _, ok := q.byParticipant[ticket.ParticipantId]; ok {
		return
	}
	q.buckets[ticket.TimeControl] = append(
		[]*entities.WaitingPlayer{ticket},
		q.buckets[ticket.TimeControl]...,
	)
	q.byParticipant[ticket.ParticipantId] = ticket
}

// ClearPending releases pairing reservations once the session is live (or
// for the joiner's side of a failed creation).
func (q *Queue) ClearPending(participants ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, participantId := range participants {
		delete(q.pending, participantId)
	}
}

// Waiting reports whether the participant has a queue entry.
func (q *Queue) Waiting(participantId string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byParticipant[participantId]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byParticipant)
}
