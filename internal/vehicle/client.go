package vehicle

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/SilentByte/aviator5g/internal/protocol"
)

// Client implements the vehicle's startup sequence and receive loop:
// one websocket connection, one Identification frame sent immediately,
// then an inbound loop dispatching Control and LatencyRequest frames
// until the connection ends for any reason. Dial deliberately knows
// nothing about the Controller that will later consume Control frames —
// the transport handshake and identification must complete (or fail
// fatally) before any servo is touched, so actuator setup is wired in
// separately via Run.
type Client struct {
	conn    *websocket.Conn
	id      protocol.Id
	groupId protocol.Id
}

// Dial opens the websocket connection named by rawURL (ws:// or wss://)
// and sends the single compiled-in Identification frame. Both steps are
// fatal on failure.
func Dial(rawURL string, id, groupId protocol.Id) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("vehicle: parse connect url: %w", err)
	}
	dialer := websocket.DefaultDialer
	switch parsed.Scheme {
	case "ws":
		// default dialer is fine.
	case "wss":
		// The broker's wss:// certificate is self-signed (internal/broker's
		// GenerateTLSConfig); there is no CA to verify it against.
		d := *websocket.DefaultDialer
		d.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		dialer = &d
	default:
		return nil, fmt.Errorf("vehicle: unsupported scheme %q, want ws or wss", parsed.Scheme)
	}

	conn, _, err := dialer.Dial(parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("vehicle: transport handshake: %w", err)
	}

	c := &Client{conn: conn, id: id, groupId: groupId}

	ident := protocol.Message{Payload: protocol.Identification{
		Id:         id,
		GroupId:    groupId,
		ClientType: protocol.ClientTypeVehicle,
	}}
	if err := c.send(ident); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vehicle: send identification: %w", err)
	}

	slog.Info("vehicle identified", "id", id, "group_id", groupId)
	return c, nil
}

func (c *Client) send(msg protocol.Message) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(protocol.Encode(msg)))
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run enters the receive loop and blocks until the connection ends,
// for any reason: clean close, transport error, or a decode failure
// (which is fatal). Inbound Control frames are applied to controller.
// Run does not invoke controller shutdown itself; the caller is
// expected to do so on every exit path, including panic-propagated
// ones.
func (c *Client) Run(controller *Controller) error {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("vehicle connection closed")
				return nil
			}
			return fmt.Errorf("vehicle: read: %w", err)
		}

		if mt != websocket.TextMessage {
			slog.Debug("vehicle: non-text frame ignored", "type", mt)
			continue
		}

		msg, err := protocol.Decode(string(data))
		if err != nil {
			return fmt.Errorf("vehicle: decode: %w", err)
		}

		switch p := msg.Payload.(type) {
		case protocol.Control:
			controller.Apply(p.Axes)

		case protocol.LatencyRequest:
			response := protocol.Message{Payload: protocol.LatencyResponse{
				InitiatorId: p.InitiatorId,
				ResponderId: c.id,
				Timestamp:   p.Timestamp,
			}}
			if err := c.send(response); err != nil {
				slog.Error("vehicle: send latency response failed", "err", err)
			}

		default:
			slog.Debug("vehicle: ignoring unhandled message variant", "type", msg.Type())
		}
	}
}
