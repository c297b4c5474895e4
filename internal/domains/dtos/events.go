// Package dtos holds the wire shapes of outbound session and queue events.
package dtos

type MatchmakingJoined struct {
	TimeControl string  `json:"timeControl"`
	Rating      float64 `json:"rating"`
}

type MatchFound struct {
	SessionId   string `json:"sessionId"`
	Color       string `json:"color"`
	Opponent    string `json:"opponent"`
	TimeControl string `json:"timeControl"`
}

type MoveApplied struct {
	SessionId string   `json:"sessionId"`
	Move      string   `json:"move"`
	Fen       string   `json:"fen"`
	Moves     []string `json:"moves"`
	Turn      string   `json:"turn"`
}

type GameOver struct {
	SessionId string `json:"sessionId"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason"`
}

type DrawOffered struct {
	SessionId string `json:"sessionId"`
	Side      string `json:"side"`
}

type DrawRejected struct {
	SessionId string `json:"sessionId"`
}

// SessionState answers a room join, giving late joiners and reconnecting
// players the full picture.
type SessionState struct {
	SessionId string   `json:"sessionId"`
	White     string   `json:"white"`
	Black     string   `json:"black"`
	Fen       string   `json:"fen,omitempty"`
	Moves     []string `json:"moves"`
	Turn      string   `json:"turn,omitempty"`
	Status    string   `json:"status"`
	Result    string   `json:"result,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	DrawOffer string   `json:"drawOffer,omitempty"`
}

type ErrorReply struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

// CorruptSessionAlert goes to the admins topic for operator review.
type CorruptSessionAlert struct {
	SessionId string `json:"sessionId"`
	Detail    string `json:"detail"`
}

// FinalizeFailureAlert goes to the admins topic when a finished session's
// durable finalize keeps failing and is parked with the reconciler.
type FinalizeFailureAlert struct {
	SessionId string `json:"sessionId"`
	Detail    string `json:"detail"`
}
