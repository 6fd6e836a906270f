package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// Gateway delivers outbound events: targeted sends to one session and
// best-effort broadcasts to every member of a roster. Recipients for a
// broadcast come from the registry's roster at call time, never from an
// independently tracked membership set, so the two can't diverge.
type Gateway struct {
	connections *ConnectionManager
	log         zerolog.Logger
}

func NewGateway(connections *ConnectionManager, log zerolog.Logger) *Gateway {
	return &Gateway{
		connections: connections,
		log:         log,
	}
}

// SendTo delivers one event to one session. Silently dropped when the
// session is gone; a departed client is not an error.
func (g *Gateway) SendTo(ctx context.Context, sessionID, event string, payload interface{}) {
	conn := g.connections.GetConnection(sessionID)
	if conn == nil {
		return
	}

	if err := g.send(ctx, conn, event, payload); err != nil {
		g.log.Debug().Err(err).Str("session", sessionID).Str("event", event).
			Msg("send failed")
	}
}

// Broadcast delivers one event to every roster member with a live
// connection. Delivery is best-effort and unordered; there is no
// acknowledgement or retry.
func (g *Gateway) Broadcast(roster []Player, event string, payload interface{}) {
	for _, p := range roster {
		conn := g.connections.GetConnection(p.ID)
		if conn == nil {
			continue
		}

		// Background context: a broadcast must not be cancelled by the
		// request that triggered it.
		if err := g.send(context.Background(), conn, event, payload); err != nil {
			g.log.Debug().Err(err).Str("session", p.ID).Str("event", event).
				Msg("broadcast send failed")
		}
	}
}

// SendError reports a request failure to a single session.
func (g *Gateway) SendError(ctx context.Context, sessionID, message string) {
	g.SendTo(ctx, sessionID, "error", ErrorMessage{Message: message})
}

func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, event string, payload interface{}) error {
	data, err := json.Marshal(ServerMessage{
		Type:    event,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
