package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	handshakeWait  = 10 * time.Second
	maxMessageSize = 4096
)

const (
	msgAuthenticate  = "authenticate"
	msgAuthenticated = "authenticated"
	msgPing          = "ping"
	msgPong          = "pong"
	msgError         = "error"
	msgJob           = "job"
	msgStep          = "step"
)

var errHandshake = errors.New("expected an authenticate message")

// wsInbound is a client message. Only "authenticate" and "ping" are
// understood.
type wsInbound struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

type wsReply struct {
	Type    string `json:"type"`
	OwnerID string `json:"ownerId,omitempty"`
	Message string `json:"message,omitempty"`
}

// wsEvent is a pushed notification: {"type":"job","jobId":...,"status":...}.
type wsEvent struct {
	Type string `json:"type"`
	domain.Notification
}

func eventFor(n domain.Notification) wsEvent {
	if n.Step != "" {
		return wsEvent{Type: msgStep, Notification: n}
	}
	return wsEvent{Type: msgJob, Notification: n}
}

// WSHandler registers a websocket connection for an owner once the client
// sends {"type":"authenticate","token":...}. Sending it again with a fresh
// token for the same owner keeps the connection registered.
type WSHandler struct {
	authSvc  AuthService
	gateway  Gateway
	upgrader websocket.Upgrader
}

func NewWSHandler(authSvc AuthService, gateway Gateway) *WSHandler {
	return &WSHandler{
		authSvc: authSvc,
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Credentials travel in the handshake message, never in cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Serve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn.Printf("websocket upgrade failed: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		conn.SetReadLimit(maxMessageSize)

		connID := uuid.NewString()
		ownerID, err := h.handshake(conn)
		if err != nil {
			logger.Debug.Printf("ws %s: handshake failed: %v", connID, err)
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(wsReply{Type: msgError, Message: err.Error()})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
				time.Now().Add(writeWait))
			return
		}

		// Subscribe before acknowledging so no notification sent after the
		// ack can be missed.
		ch := h.gateway.Subscribe(ownerID)
		defer h.gateway.Unsubscribe(ownerID, ch)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(wsReply{Type: msgAuthenticated, OwnerID: ownerID}); err != nil {
			return
		}
		logger.Info.Printf("ws %s: registered for owner %s", connID, logger.SanitizeForLog(ownerID))

		replies := make(chan wsReply, 4)
		readDone := make(chan struct{})
		quit := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(readDone)
			h.readPump(conn, ownerID, replies, quit)
		}()

		h.writePump(conn, ch, replies, readDone)
		close(quit)
		_ = conn.Close()
		wg.Wait()
		logger.Debug.Printf("ws %s: closed", connID)
	}
}

// handshake waits for the first message, which must authenticate, and
// returns the owner it names.
func (h *WSHandler) handshake(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))

	var msg wsInbound
	if err := conn.ReadJSON(&msg); err != nil {
		return "", errHandshake
	}
	if msg.Type != msgAuthenticate {
		return "", errHandshake
	}
	return h.authSvc.ValidateToken(msg.Token)
}

func (h *WSHandler) readPump(conn *websocket.Conn, ownerID string, replies chan<- wsReply, quit <-chan struct{}) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug.Printf("ws read error for owner %s: %v", logger.SanitizeForLog(ownerID), err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var reply wsReply
		var msg wsInbound
		switch {
		case json.Unmarshal(data, &msg) != nil:
			reply = wsReply{Type: msgError, Message: "invalid message"}
		case msg.Type == msgPing:
			reply = wsReply{Type: msgPong}
		case msg.Type == msgAuthenticate:
			reply = h.reauthenticate(ownerID, msg.Token)
		default:
			reply = wsReply{Type: msgError, Message: "unknown message type"}
		}

		select {
		case replies <- reply:
		case <-quit:
			return
		}
	}
}

func (h *WSHandler) reauthenticate(ownerID, token string) wsReply {
	got, err := h.authSvc.ValidateToken(token)
	switch {
	case err != nil:
		return wsReply{Type: msgError, Message: err.Error()}
	case got != ownerID:
		return wsReply{Type: msgError, Message: "token belongs to another owner"}
	default:
		return wsReply{Type: msgAuthenticated, OwnerID: ownerID}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, ch <-chan domain.Notification, replies <-chan wsReply, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v) == nil
	}

	for {
		select {
		case <-readDone:
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if !write(eventFor(n)) {
				return
			}
		case reply := <-replies:
			if !write(reply) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
