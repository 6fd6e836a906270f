package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/", s.rootHandler)
	r.Get("/health", s.healthHandler)
	r.Get("/websocket", s.websocketHandler)

	return s.corsMiddleware(r)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The game client is served separately, so any origin may connect.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"service":"grammar-server","endpoints":["/health","/websocket"]}`))
}

// healthHandler is the liveness endpoint for hosting-platform checks. It is
// not part of the game protocol and reports nothing about group state.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	sessionID := uuid.New().String()
	s.log.Info().Str("session", sessionID).Msg("connection opened")
	s.connectionManager.AddConnection(sessionID, socket)

	defer s.handleDisconnect(sessionID)

	// Tell the client its session id up front; updateScore payloads echo it.
	s.gateway.SendTo(ctx, sessionID, "connected", ConnectedNotification{ID: sessionID})

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			s.log.Debug().Err(err).Str("session", sessionID).Msg("connection read ended")
			return
		}

		if msgType != websocket.MessageText {
			s.log.Warn().Str("session", sessionID).Msg("non-text input ignored")
			continue
		}

		if !s.rateLimiter.Allow(sessionID) {
			s.gateway.SendError(ctx, sessionID, "RATE_LIMITED: Too many messages")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn().Err(err).Str("session", sessionID).Msg("invalid JSON")
			s.gateway.SendError(ctx, sessionID, "INVALID_JSON: Malformed message")
			continue
		}

		s.log.Debug().Str("session", sessionID).Str("type", msg.Type).Msg("message received")

		switch msg.Type {
		case "ping":
			s.gateway.SendTo(ctx, sessionID, "pong", struct{}{})

		case "createGroup":
			s.handleCreateGroup(ctx, sessionID, msg.Payload)

		case "joinGroup":
			s.handleJoinGroup(ctx, sessionID, msg.Payload)

		case "setProficiency":
			s.handleSetProficiency(ctx, sessionID, msg.Payload)

		case "startGameRequest":
			s.handleStartGame(ctx, sessionID, msg.Payload)

		case "updateScore":
			s.handleUpdateScore(ctx, sessionID, msg.Payload)

		default:
			if err := ValidateMessageType(msg.Type); err != nil {
				s.gateway.SendError(ctx, sessionID, err.Error())
			}
		}
	}
}

// handleDisconnect removes the session's player from its group (if any) and
// notifies the survivors. An empty group is deleted silently; its code goes
// back into circulation.
func (s *Server) handleDisconnect(sessionID string) {
	s.connectionManager.RemoveConnection(sessionID)
	s.rateLimiter.RemoveConnection(sessionID)
	s.log.Info().Str("session", sessionID).Msg("connection closed")

	code, remaining, removed := s.registry.RemovePlayer(sessionID)
	if !removed {
		return
	}

	if len(remaining) == 0 {
		s.log.Info().Str("group", code).Msg("group deleted")
		return
	}

	// If the host left, the surviving index 0 is the host now. No promote
	// message exists; the roster broadcast is the only signal.
	s.gateway.Broadcast(remaining, "updatePlayers", remaining)
}

func (s *Server) handleCreateGroup(ctx context.Context, sessionID string, payload json.RawMessage) {
	var req CreateGroupRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.gateway.SendError(ctx, sessionID, "INVALID_PAYLOAD: Invalid createGroup payload")
		return
	}

	if err := ValidateNickname(req.Nickname); err != nil {
		s.gateway.SendError(ctx, sessionID, err.Error())
		return
	}

	// The registry drops any stale membership once the create is known to
	// succeed; a capacity failure leaves the old group alone.
	code, roster, departure, err := s.registry.CreateGroup(sessionID, req.Nickname)
	if err != nil {
		// CAPACITY_EXHAUSTED: surfaced to the requester, never retried here.
		s.gateway.SendError(ctx, sessionID, err.Error())
		return
	}

	s.notifyDeparture(sessionID, departure)

	s.log.Info().Str("group", code).Str("session", sessionID).
		Str("nickname", req.Nickname).Msg("group created")

	s.gateway.SendTo(ctx, sessionID, "groupCreated", GroupCreatedResponse{
		GroupCode: code,
		Players:   roster,
	})
}

func (s *Server) handleJoinGroup(ctx context.Context, sessionID string, payload json.RawMessage) {
	var req JoinGroupRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.gateway.SendError(ctx, sessionID, "INVALID_PAYLOAD: Invalid joinGroup payload")
		return
	}

	if err := ValidateNickname(req.Nickname); err != nil {
		s.gateway.SendError(ctx, sessionID, err.Error())
		return
	}

	if err := ValidateGroupCode(req.GroupCode); err != nil {
		s.gateway.SendTo(ctx, sessionID, "joinError", "Group not found.")
		return
	}

	// A miss must change no roster anywhere, so any stale membership is
	// detached by the registry only after the target group is found.
	roster, departure, err := s.registry.JoinGroup(req.GroupCode, sessionID, req.Nickname)
	if err != nil {
		// Only the requester hears about a miss; other groups are untouched.
		s.gateway.SendTo(ctx, sessionID, "joinError", "Group not found.")
		return
	}

	s.notifyDeparture(sessionID, departure)

	s.log.Info().Str("group", req.GroupCode).Str("session", sessionID).
		Str("nickname", req.Nickname).Msg("player joined")

	s.gateway.SendTo(ctx, sessionID, "joinSuccess", JoinSuccessResponse{
		GroupCode: req.GroupCode,
	})
	s.gateway.Broadcast(roster, "updatePlayers", roster)
}

func (s *Server) handleSetProficiency(ctx context.Context, sessionID string, payload json.RawMessage) {
	var req SetProficiencyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.gateway.SendError(ctx, sessionID, "INVALID_PAYLOAD: Invalid setProficiency payload")
		return
	}

	if !ValidProficiency(req.Proficiency) {
		s.gateway.SendError(ctx, sessionID, "INVALID_PROFICIENCY: Unknown proficiency level")
		return
	}

	// Host-only. Non-host and unknown-group requests are dropped without a
	// reply; the protocol has no denial event for this.
	if !s.registry.IsHost(req.GroupCode, sessionID) {
		s.log.Debug().Str("group", req.GroupCode).Str("session", sessionID).
			Msg("setProficiency ignored: sender is not the host")
		return
	}

	s.registry.SetProficiency(req.GroupCode, req.Proficiency)
	s.log.Info().Str("group", req.GroupCode).Str("proficiency", string(req.Proficiency)).
		Msg("proficiency set")
}

func (s *Server) handleStartGame(ctx context.Context, sessionID string, payload json.RawMessage) {
	var req StartGameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.gateway.SendError(ctx, sessionID, "INVALID_PAYLOAD: Invalid startGameRequest payload")
		return
	}

	if !ValidProficiency(req.Proficiency) {
		s.gateway.SendError(ctx, sessionID, "INVALID_PROFICIENCY: Unknown proficiency level")
		return
	}

	roster, err := s.registry.StartGame(req.GroupCode, sessionID, req.Proficiency)
	if err != nil {
		// Same silent drop for non-hosts and dead codes: no broadcast, no
		// roster mutation, no reply.
		s.log.Debug().Err(err).Str("group", req.GroupCode).Str("session", sessionID).
			Msg("startGameRequest ignored")
		return
	}

	s.log.Info().Str("group", req.GroupCode).Str("proficiency", string(req.Proficiency)).
		Int("players", len(roster)).Msg("game started")

	s.gateway.Broadcast(roster, "gameStarted", GameStartedNotification{
		Proficiency: req.Proficiency,
	})
}

func (s *Server) handleUpdateScore(ctx context.Context, sessionID string, payload json.RawMessage) {
	var req UpdateScoreRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.gateway.SendError(ctx, sessionID, "INVALID_PAYLOAD: Invalid updateScore payload")
		return
	}

	// Identity comes from the transport session, not the claimed id. The
	// score value itself is stored as reported: clients are trusted on
	// scoring and the server never recomputes a round.
	code, roster, err := s.registry.UpdateScore(sessionID, req.Score)
	if err != nil {
		s.log.Debug().Err(err).Str("session", sessionID).Msg("updateScore ignored")
		return
	}

	s.log.Debug().Str("group", code).Str("session", sessionID).
		Int("score", req.Score).Msg("score updated")

	// Roster goes out unsorted; scoreboard ordering is a display concern.
	s.gateway.Broadcast(roster, "updatePlayers", roster)
}

// notifyDeparture tells a group that one of its members was detached by a
// create or join elsewhere.
func (s *Server) notifyDeparture(sessionID string, departure *Departure) {
	if departure == nil {
		return
	}

	s.log.Info().Str("group", departure.Code).Str("session", sessionID).
		Msg("stale membership removed")

	if len(departure.Remaining) > 0 {
		s.gateway.Broadcast(departure.Remaining, "updatePlayers", departure.Remaining)
	}
}
