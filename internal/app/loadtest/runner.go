// Package loadtest drives scripted games against a running coordinator over
// its websocket protocol. Each pair of clients queues up, gets matched and
// plays a fixed mating line to completion.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/domains/dtos"
	"github.com/tempo-chess/tempo/pkg/logging"
)

// Scripted line ending in checkmate after four plies.
var script = []string{"f2f3", "e7e5", "g2g4", "d8h4"}

type Runner struct {
	config Config

	gamesDone  atomic.Int32
	errorsSeen atomic.Int32
}

func NewRunner() *Runner {
	return &Runner{config: LoadConfig()}
}

func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < r.config.Pairs; i++ {
		for _, seat := range []string{"a", "b"} {
			participantId := fmt.Sprintf("loadtest-%03d-%s", i, seat)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := r.runPlayer(ctx, participantId); err != nil {
					r.errorsSeen.Add(1)
					logging.Error("player failed",
						zap.String("participant_id", participantId),
						zap.Error(err),
					)
				}
			}()
		}
		// Stagger joins a little so pairing order stays deterministic
		// within each pair.
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	logging.Info("loadtest finished",
		zap.Int32("games_done", r.gamesDone.Load()),
		zap.Int32("errors", r.errorsSeen.Load()),
		zap.Duration("elapsed", time.Since(start)),
	)
	if r.errorsSeen.Load() > 0 {
		return fmt.Errorf("%d players failed", r.errorsSeen.Load())
	}
	return nil
}

func (r *Runner) runPlayer(ctx context.Context, participantId string) error {
	token, err := r.mintToken(participantId)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.config.ServerUrl, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := send(conn, "join_matchmaking", map[string]any{
		"time_control": r.config.TimeControl,
		"rating":       1500,
	}); err != nil {
		return err
	}

	var sessionId string
	var color string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var event struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}

		switch event.Type {
		case "match_found":
			var found dtos.MatchFound
			if err := json.Unmarshal(event.Data, &found); err != nil {
				return err
			}
			sessionId = found.SessionId
			color = found.Color
			if err := send(conn, "join_session_room", map[string]any{
				"session_id": sessionId,
			}); err != nil {
				return err
			}
		case "session_state":
			var state dtos.SessionState
			if err := json.Unmarshal(event.Data, &state); err != nil {
				return err
			}
			if err := r.playIfOurTurn(conn, sessionId, color, len(state.Moves)); err != nil {
				return err
			}
		case "move_applied":
			var applied dtos.MoveApplied
			if err := json.Unmarshal(event.Data, &applied); err != nil {
				return err
			}
			if err := r.playIfOurTurn(conn, sessionId, color, len(applied.Moves)); err != nil {
				return err
			}
		case "game_over":
			r.gamesDone.Add(1)
			return nil
		case "error":
			var reply dtos.ErrorReply
			_ = json.Unmarshal(event.Data, &reply)
			return fmt.Errorf("server rejected %s: %s", reply.Command, reply.Error)
		}
	}
}

// playIfOurTurn sends the next scripted ply when it is this client's move.
func (r *Runner) playIfOurTurn(conn *websocket.Conn, sessionId, color string, plies int) error {
	if plies >= len(script) {
		return nil
	}
	whiteToMove := plies%2 == 0
	if whiteToMove != (color == "white") {
		return nil
	}
	return send(conn, "move", map[string]any{
		"session_id": sessionId,
		"move":       script[plies],
	})
}

func (r *Runner) mintToken(participantId string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": participantId,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	return token.SignedString([]byte(r.config.JwtSecret))
}

func send(conn *websocket.Conn, commandType string, data map[string]any) error {
	payload, err := json.Marshal(map[string]any{
		"type": commandType,
		"data": data,
	})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
