package entities

import "time"

// WaitingPlayer is one matchmaking queue entry. At most one exists per
// participant at any time.
type WaitingPlayer struct {
	ParticipantId string    `json:"participantId"`
	TimeControl   string    `json:"timeControl"`
	Rating        float64   `json:"rating"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}
