package server

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/domains/dtos"
	"github.com/tempo-chess/tempo/internal/transport"
	"github.com/tempo-chess/tempo/pkg/logging"
)

type payload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinMatchmakingRequest struct {
	TimeControl string  `json:"time_control"`
	Rating      float64 `json:"rating"`
}

type sessionRequest struct {
	SessionId string `json:"session_id"`
}

type moveRequest struct {
	SessionId string `json:"session_id"`
	Move      string `json:"move"`
}

type respondDrawRequest struct {
	SessionId string `json:"session_id"`
	Accept    bool   `json:"accept"`
}

func (s *server) handleMessage(client *transport.Client, message []byte) {
	var p payload
	if err := json.Unmarshal(message, &p); err != nil {
		client.Send(transport.NewEvent("error", dtos.ErrorReply{Error: "malformed payload"}))
		return
	}

	ctx := context.Background()
	var err error
	switch p.Type {
	case "join_matchmaking":
		err = s.handleJoinMatchmaking(ctx, client, p.Data)
	case "cancel_matchmaking":
		s.coordinator.CancelMatchmaking(client.ParticipantId)
	case "join_session_room":
		err = s.handleJoinSessionRoom(ctx, client, p.Data)
	case "leave_session_room":
		err = s.handleLeaveSessionRoom(client, p.Data)
	case "move":
		err = s.handleMove(ctx, client, p.Data)
	case "resign":
		err = s.handleResign(ctx, client, p.Data)
	case "offer_draw":
		err = s.handleOfferDraw(client, p.Data)
	case "respond_draw":
		err = s.handleRespondDraw(ctx, client, p.Data)
	default:
		client.Send(transport.NewEvent("error", dtos.ErrorReply{
			Command: p.Type,
			Error:   "unknown command",
		}))
		return
	}
	if err != nil {
		// Failures go back to the acting client only; the room never
		// sees another player's rejected command.
		logging.Debug("command rejected",
			zap.String("participant_id", client.ParticipantId),
			zap.String("command", p.Type),
			zap.Error(err),
		)
		client.Send(transport.NewEvent("error", dtos.ErrorReply{
			Command: p.Type,
			Error:   err.Error(),
		}))
	}
}

func (s *server) handleJoinMatchmaking(ctx context.Context, client *transport.Client, data json.RawMessage) error {
	var req joinMatchmakingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	_, _, err := s.coordinator.JoinMatchmaking(ctx, client.ParticipantId, req.TimeControl, req.Rating)
	return err
}

// handleJoinSessionRoom subscribes the client to the session's event stream
// and replies with the full current state, restoring the session from its
// durable record when it is not live here.
func (s *server) handleJoinSessionRoom(ctx context.Context, client *transport.Client, data json.RawMessage) error {
	var req sessionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	state, err := s.coordinator.SessionState(ctx, req.SessionId)
	if err != nil {
		return err
	}
	s.hub.Subscribe(client, transport.SessionTopic(req.SessionId))
	client.Send(transport.NewEvent("session_state", state))
	return nil
}

func (s *server) handleLeaveSessionRoom(client *transport.Client, data json.RawMessage) error {
	var req sessionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	s.hub.Unsubscribe(client, transport.SessionTopic(req.SessionId))
	return nil
}

func (s *server) handleMove(ctx context.Context, client *transport.Client, data json.RawMessage) error {
	var req moveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	return s.coordinator.ApplyMove(ctx, req.SessionId, client.ParticipantId, req.Move)
}

func (s *server) handleResign(ctx context.Context, client *transport.Client, data json.RawMessage) error {
	var req sessionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	return s.coordinator.Resign(ctx, req.SessionId, client.ParticipantId)
}

func (s *server) handleOfferDraw(client *transport.Client, data json.RawMessage) error {
	var req sessionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	return s.coordinator.OfferDraw(req.SessionId, client.ParticipantId)
}

func (s *server) handleRespondDraw(ctx context.Context, client *transport.Client, data json.RawMessage) error {
	var req respondDrawRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	return s.coordinator.RespondDraw(ctx, req.SessionId, client.ParticipantId, req.Accept)
}
