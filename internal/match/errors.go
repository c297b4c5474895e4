package match

import (
	"errors"

	"github.com/tempo-chess/tempo/internal/rules"
)

var (
	// ErrSessionNotFound: no live session under that id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotParticipant: the actor is not a party to the session.
	ErrNotParticipant = errors.New("not a participant")
	// ErrWrongTurn: the actor moved out of turn; state unchanged.
	ErrWrongTurn = errors.New("wrong turn")
	// ErrIllegalMove re-exports the validator rejection.
	ErrIllegalMove = rules.ErrIllegalMove
	// ErrSessionEnded: the session is no longer accepting commands.
	ErrSessionEnded = errors.New("session ended")
	// ErrNoDrawOffer: respond_draw with no offer pending from the other side.
	ErrNoDrawOffer = errors.New("no draw offer pending")
	// ErrAlreadyInSession: a participant in a live session cannot queue.
	ErrAlreadyInSession = errors.New("participant already in a live session")
	// ErrCreationFailure: the initial durable write could not be confirmed;
	// no live session was created.
	ErrCreationFailure = errors.New("session creation failed")
	// ErrFinalizeFailure: the durable finalize could not be confirmed. The
	// reconciler keeps retrying and the admins topic is alerted; player
	// commands that triggered the finish still succeed.
	ErrFinalizeFailure = errors.New("session finalize failed")
	// ErrCorruptSession: a stored history no longer validates on recovery.
	// The session is force-finalized and never resumed.
	ErrCorruptSession = errors.New("corrupt session")
)
