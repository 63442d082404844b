// Package broker implements the relay's connection acceptor and per-
// connection handler: the websocket upgrade, the identification
// handshake, the inbound dispatch switch, and the writer goroutine
// that drains a connection's outbound queue.
//
// Grounded on server/internal/ws/handler.go, generalized from a
// chat/voice message switch to a four-variant Identification/Control/
// LatencyRequest/LatencyResponse dispatch over an Unidentified/
// Identified state machine.
package broker

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SilentByte/aviator5g/internal/protocol"
	"github.com/SilentByte/aviator5g/internal/registry"
)

const writeTimeout = 5 * time.Second

// Handler owns websocket transport for the broker.
type Handler struct {
	reg      *registry.Registry
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to reg.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{
		reg: reg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades one request to a websocket connection and serves
// it until the peer disconnects or is dropped for a protocol error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "remote", remoteAddr, "err", err)
		return
	}
	h.serveConn(conn, remoteAddr)
}

func (h *Handler) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()
	conn.SetReadLimit(1 << 16)

	rec := h.reg.Accept(remoteAddr)
	slog.Info("ws connected", "remote", remoteAddr)

	defer func() {
		h.reg.Release(remoteAddr)
		slog.Info("ws disconnected", "remote", remoteAddr)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			msg, ok := rec.Dequeue()
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(protocol.Encode(msg))); err != nil {
				slog.Debug("ws write error", "remote", remoteAddr, "err", err)
				return
			}
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws unexpected close", "remote", remoteAddr, "err", err)
			}
			break
		}

		if mt != websocket.TextMessage {
			slog.Debug("ws non-text frame ignored", "remote", remoteAddr, "type", mt)
			continue
		}

		msg, err := protocol.Decode(string(data))
		if err != nil {
			slog.Debug("ws malformed frame", "remote", remoteAddr, "err", err)
			break
		}

		if !h.handleInbound(remoteAddr, rec, msg) {
			break
		}
	}

	// Release closes the outbound queue, which is what ends the writer.
	h.reg.Release(remoteAddr)
	<-writerDone
}

// handleInbound dispatches one decoded frame through the connection's
// Unidentified/Identified state machine. It returns false when the
// connection must be dropped.
func (h *Handler) handleInbound(addr string, rec *registry.ConnectionRecord, msg protocol.Message) bool {
	switch p := msg.Payload.(type) {
	case protocol.Identification:
		if err := h.reg.Identify(addr, p.Id, p.GroupId, p.ClientType); err != nil {
			slog.Debug("ws already identified", "remote", addr, "err", err)
			return false
		}
		slog.Info("ws identified", "remote", addr, "id", p.Id, "group_id", p.GroupId, "client_type", p.ClientType)
		return true

	case protocol.Control:
		if !rec.Identified() {
			slog.Debug("ws control before identification", "remote", addr)
			return false
		}
		h.reg.ForwardAll(addr, msg)
		return true

	case protocol.LatencyRequest:
		if !rec.Identified() {
			slog.Debug("ws latency_request before identification", "remote", addr)
			return false
		}
		// Broadcast to the group's opposite-role peers, same as Control;
		// the responding vehicle addresses its LatencyResponse back to
		// initiator_id directly (below), since a broadcast reply would
		// leak RTT timing to every peer in the group.
		h.reg.ForwardAll(addr, msg)
		return true

	case protocol.LatencyResponse:
		if !rec.Identified() {
			slog.Debug("ws latency_response before identification", "remote", addr)
			return false
		}
		h.reg.ForwardSingle(p.InitiatorId, msg)
		return true

	default:
		slog.Warn("ws unexpected payload type", "remote", addr, "type", fmt.Sprintf("%T", p))
		return false
	}
}
