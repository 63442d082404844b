package broker

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SilentByte/aviator5g/internal/protocol"
	"github.com/SilentByte/aviator5g/internal/registry"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	reg := registry.New()
	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(reg))
	httpServer := httptest.NewServer(mux)
	t.Cleanup(httpServer.Close)
	return "ws" + strings.TrimPrefix(httpServer.URL, "http")
}

func dial(t *testing.T, baseWSURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(baseWSURL+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(protocol.Encode(msg))); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.Message) bool) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if ok := isTimeout(err, &netErr); ok {
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.Fatalf("connection closed unexpectedly: %v", err)
			}
			t.Fatalf("read: %v", err)
		}
		msg, err := protocol.Decode(string(data))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
	t.Fatal("timed out waiting for matching message")
	return protocol.Message{}
}

func isTimeout(err error, target *net.Error) bool {
	if ne, ok := err.(net.Error); ok {
		*target = ne
		return ne.Timeout()
	}
	return false
}

func identify(t *testing.T, conn *websocket.Conn, id, groupID protocol.Id, clientType protocol.ClientType) {
	t.Helper()
	writeMsg(t, conn, protocol.Message{Payload: protocol.Identification{
		Id: id, GroupId: groupID, ClientType: clientType,
	}})
}

// TestEndToEndControlFanOut checks that a pilot's Control frame reaches
// the one identified vehicle in its group over a real websocket round
// trip through the HTTP server.
func TestEndToEndControlFanOut(t *testing.T) {
	baseURL := startTestServer(t)

	pilot := dial(t, baseURL)
	defer pilot.Close()
	vehicle := dial(t, baseURL)
	defer vehicle.Close()

	groupID := mustUUID(t, "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	pilotID := mustUUID(t, "11111111-1111-1111-1111-111111111111")
	vehicleID := mustUUID(t, "22222222-2222-2222-2222-222222222222")

	identify(t, pilot, pilotID, groupID, protocol.ClientTypePilot)
	identify(t, vehicle, vehicleID, groupID, protocol.ClientTypeVehicle)

	writeMsg(t, pilot, protocol.Message{Payload: protocol.Control{Axes: []float64{0.5, -0.25, 0, 0}}})

	got := readUntil(t, vehicle, func(m protocol.Message) bool {
		_, ok := m.Payload.(protocol.Control)
		return ok
	})
	if got.Payload.(protocol.Control).Axes[0] != 0.5 {
		t.Errorf("unexpected payload: %+v", got.Payload)
	}
}

// TestEndToEndPreIdentificationRejection checks that a Control frame
// sent before Identification causes the broker to close the
// connection, with no frame fanned out anywhere.
func TestEndToEndPreIdentificationRejection(t *testing.T) {
	baseURL := startTestServer(t)

	conn := dial(t, baseURL)
	defer conn.Close()

	writeMsg(t, conn, protocol.Message{Payload: protocol.Control{Axes: []float64{0, 0}}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed after a pre-identification control frame")
	}
}

// TestEndToEndBinaryFrameIgnored checks that a stray binary frame is
// logged and dropped rather than torn down as a malformed decode, and
// that the connection keeps forwarding frames afterward.
func TestEndToEndBinaryFrameIgnored(t *testing.T) {
	baseURL := startTestServer(t)

	pilot := dial(t, baseURL)
	defer pilot.Close()
	vehicle := dial(t, baseURL)
	defer vehicle.Close()

	groupID := mustUUID(t, "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	pilotID := mustUUID(t, "11111111-1111-1111-1111-111111111111")
	vehicleID := mustUUID(t, "22222222-2222-2222-2222-222222222222")

	identify(t, pilot, pilotID, groupID, protocol.ClientTypePilot)
	identify(t, vehicle, vehicleID, groupID, protocol.ClientTypeVehicle)

	_ = pilot.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := pilot.WriteMessage(websocket.BinaryMessage, []byte{0x00, 0x01, 0x02}); err != nil {
		t.Fatalf("write binary frame: %v", err)
	}

	writeMsg(t, pilot, protocol.Message{Payload: protocol.Control{Axes: []float64{0.5, -0.25, 0, 0}}})

	got := readUntil(t, vehicle, func(m protocol.Message) bool {
		_, ok := m.Payload.(protocol.Control)
		return ok
	})
	if got.Payload.(protocol.Control).Axes[0] != 0.5 {
		t.Errorf("unexpected payload: %+v", got.Payload)
	}
}
