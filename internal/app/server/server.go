package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/match"
	"github.com/tempo-chess/tempo/internal/transport"
	"github.com/tempo-chess/tempo/pkg/logging"
)

type server struct {
	address  string
	upgrader websocket.Upgrader

	config      Config
	hub         *transport.Hub
	coordinator *match.Coordinator

	httpServer *http.Server
}

func NewServer(cfg Config, hub *transport.Hub, coordinator *match.Coordinator) *server {
	return &server{
		address: "0.0.0.0:" + cfg.Port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		config:      cfg,
		hub:         hub,
		coordinator: coordinator,
	}
}

// Start method    starts the coordinator server
func (s *server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		who, err := s.auth(r)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(err.Error()))
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error(
				"failed to upgrade connection",
				zap.String("error", err.Error()),
			)
			return
		}

		client := transport.NewClient(conn, who.ParticipantId)
		s.hub.Subscribe(client, transport.PlayerTopic(who.ParticipantId))
		if who.Admin {
			s.hub.Subscribe(client, transport.TopicAdmins)
		}
		logging.Info("client connected",
			zap.String("participant_id", who.ParticipantId),
			zap.String("remote_address", conn.RemoteAddr().String()),
		)

		go client.WritePump()
		client.ReadPump(func(message []byte) {
			s.handleMessage(client, message)
		})

		// ReadPump returned, the connection is gone.
		s.hub.Detach(client)
		client.Close()
		s.coordinator.CancelMatchmaking(who.ParticipantId)
		logging.Info("client disconnected",
			zap.String("participant_id", who.ParticipantId),
		)
	})

	s.httpServer = &http.Server{Addr: s.address, Handler: mux}
	logging.Info("websocket server started", zap.String("port", s.config.Port))
	return s.httpServer.ListenAndServe()
}

func (s *server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
