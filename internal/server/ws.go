package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/registry"
)

const (
	writeWait    = 10 * time.Second
	readWait     = 90 * time.Second
	maxFrameSize = 4096
)

// sampleTradeAmount sizes the eligibility snapshot pushed right after
// connect, before any concrete opportunity exists.
var sampleTradeAmount = decimal.NewFromInt(100)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// wsTransport adapts a gorilla connection to the registry's Transport.
// Writes are serialized: the broadcaster, coordinator, and keepalive loop
// all push concurrently onto the same connection.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

// handleWS handles WebSocket upgrade requests at GET /ws/opportunities.
// An optional user_id query parameter binds the connection to a user;
// without it the connection is anonymous and receives previews only.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	conn := s.registry.Connect(newWSTransport(wsConn), userID)

	if userID != "" {
		s.pushEligibilityStatus(r.Context(), conn, userID)
	}

	s.readLoop(wsConn, conn)
}

// pushEligibilityStatus sends the user's current standing right after
// connect so clients can render funding prompts before the first alert.
func (s *Server) pushEligibilityStatus(ctx context.Context, conn *registry.Conn, userID string) {
	user, err := s.directory.User(ctx, userID)
	if err != nil {
		slog.Warn("eligibility snapshot skipped", "user", userID, "err", err)
		return
	}
	verdict := s.evaluator.Evaluate(ctx, user, sampleTradeAmount)
	status := event.EligibilityStatus{
		Type:      event.TypeEligibilityStatus,
		Eligible:  verdict.Eligible,
		Details:   verdict,
		Timestamp: time.Now().UTC(),
	}
	if err := conn.Send(status); err != nil {
		s.registry.Disconnect(conn)
	}
}

// readLoop consumes client frames until the connection dies, then removes
// it from the registry. Any pong traffic refreshes the read deadline.
func (s *Server) readLoop(wsConn *websocket.Conn, conn *registry.Conn) {
	defer s.registry.Disconnect(conn)

	wsConn.SetReadLimit(maxFrameSize)
	wsConn.SetReadDeadline(time.Now().Add(readWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(readWait))
		conn.Touch(time.Now().UTC())
		return nil
	})

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		wsConn.SetReadDeadline(time.Now().Add(readWait))
		s.handleClientMessage(conn, raw)
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// handleClientMessage dispatches one inbound frame. Malformed or unknown
// messages get an error event; the connection stays open either way.
func (s *Server) handleClientMessage(conn *registry.Conn, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(conn, "invalid message format")
		return
	}

	switch msg.Type {
	case "pong":
		conn.Touch(time.Now().UTC())

	case "subscribe_alerts":
		if conn.Anonymous() {
			s.sendError(conn, "Authentication required for alert subscription")
			return
		}
		conn.SetSubscribed(true)
		confirm := event.SubscriptionConfirmed{
			Type:      event.TypeSubscriptionConfirmed,
			Message:   "Subscribed to arbitrage alerts",
			Timestamp: time.Now().UTC(),
		}
		if err := conn.Send(confirm); err != nil {
			s.registry.Disconnect(conn)
		}

	case "request_demo_opportunity":
		// Demo broadcasts fan out to everyone, not just the requester,
		// and outlive this connection's request scope.
		s.detector.BroadcastDemo(context.Background())

	default:
		s.sendError(conn, fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (s *Server) sendError(conn *registry.Conn, message string) {
	errEvent := event.Error{
		Type:      event.TypeError,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := conn.Send(errEvent); err != nil {
		s.registry.Disconnect(conn)
	}
}
