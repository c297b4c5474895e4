package entities

import "time"

const ResultPending = "pending"

// TournamentPairing is a scheduled round matchup. Result starts pending and
// is written exactly once when the bound session finishes.
type TournamentPairing struct {
	TournamentId string    `dynamodbav:"TournamentId" json:"tournamentId"`
	PairingId    string    `dynamodbav:"PairingId" json:"pairingId"`
	Round        int       `dynamodbav:"Round" json:"round"`
	White        string    `dynamodbav:"White" json:"white"`
	Black        string    `dynamodbav:"Black" json:"black"`
	SessionId    string    `dynamodbav:"SessionId" json:"sessionId"`
	Result       string    `dynamodbav:"Result" json:"result"`
	UpdatedAt    time.Time `dynamodbav:"UpdatedAt" json:"updatedAt"`
}

// TournamentStanding is one enrolled player's point total plus counters.
type TournamentStanding struct {
	TournamentId  string    `dynamodbav:"TournamentId" json:"tournamentId"`
	ParticipantId string    `dynamodbav:"ParticipantId" json:"participantId"`
	Points        float64   `dynamodbav:"Points" json:"points"`
	Wins          int       `dynamodbav:"Wins" json:"wins"`
	Draws         int       `dynamodbav:"Draws" json:"draws"`
	Losses        int       `dynamodbav:"Losses" json:"losses"`
	UpdatedAt     time.Time `dynamodbav:"UpdatedAt" json:"updatedAt"`
}
