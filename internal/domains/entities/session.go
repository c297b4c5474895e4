package entities

import "time"

type SessionStatus string

const (
	StatusLive     SessionStatus = "LIVE"
	StatusFinished SessionStatus = "FINISHED"
)

// TournamentRef ties a session to the pairing it fulfills.
type TournamentRef struct {
	TournamentId string `dynamodbav:"TournamentId" json:"tournamentId"`
	PairingId    string `dynamodbav:"PairingId" json:"pairingId"`
}

// SessionRecord is the durable copy of a session. It is the source of truth
// for session existence and final outcomes across process restarts.
type SessionRecord struct {
	SessionId   string         `dynamodbav:"SessionId" json:"sessionId"`
	White       string         `dynamodbav:"White" json:"white"`
	Black       string         `dynamodbav:"Black" json:"black"`
	TimeControl string         `dynamodbav:"TimeControl" json:"timeControl"`
	Status      SessionStatus  `dynamodbav:"Status" json:"status"`
	Moves       []string       `dynamodbav:"Moves" json:"moves"`
	Result      string         `dynamodbav:"Result,omitempty" json:"result,omitempty"`
	Reason      string         `dynamodbav:"Reason,omitempty" json:"reason,omitempty"`
	Tournament  *TournamentRef `dynamodbav:"Tournament,omitempty" json:"tournament,omitempty"`
	CreatedAt   time.Time      `dynamodbav:"CreatedAt" json:"createdAt"`
	UpdatedAt   time.Time      `dynamodbav:"UpdatedAt" json:"updatedAt"`
}
