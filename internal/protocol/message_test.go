package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustUUID(t *testing.T, s string) Id {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", s, err)
	}
	return id
}

func TestRoundTripIdentification(t *testing.T) {
	msg := Message{Payload: Identification{
		Id:         mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		GroupId:    mustUUID(t, "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"),
		ClientType: ClientTypePilot,
	}}

	text := Encode(msg)
	got, err := Decode(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != msg {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestRoundTripControl(t *testing.T) {
	msg := Message{Payload: Control{Axes: []float64{0.5, -0.25, 0, 0}}}

	got, err := Decode(Encode(msg))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotControl := got.Payload.(Control)
	wantControl := msg.Payload.(Control)
	if len(gotControl.Axes) != len(wantControl.Axes) {
		t.Fatalf("axes length: got %d, want %d", len(gotControl.Axes), len(wantControl.Axes))
	}
	for i := range gotControl.Axes {
		if gotControl.Axes[i] != wantControl.Axes[i] {
			t.Errorf("axes[%d]: got %v, want %v", i, gotControl.Axes[i], wantControl.Axes[i])
		}
	}
}

func TestRoundTripLatencyRequest(t *testing.T) {
	ts := DateTime(time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC))
	msg := Message{Payload: LatencyRequest{
		InitiatorId: mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		Timestamp:   ts,
	}}

	got, err := Decode(Encode(msg))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotReq := got.Payload.(LatencyRequest)
	if !gotReq.Timestamp.Equal(ts) {
		t.Errorf("timestamp: got %v, want %v", gotReq.Timestamp, ts)
	}
}

func TestRoundTripLatencyResponse(t *testing.T) {
	ts := DateTime(time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC))
	msg := Message{Payload: LatencyResponse{
		InitiatorId: mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		ResponderId: mustUUID(t, "22222222-2222-2222-2222-222222222222"),
		Timestamp:   ts,
	}}

	text := Encode(msg)
	got, err := Decode(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != msg {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestDecodeS3Scenario(t *testing.T) {
	text := `{"type":"latency_request","initiator_id":"11111111-1111-1111-1111-111111111111","timestamp":"2021-06-01T12:00:00Z"}`
	msg, err := Decode(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req, ok := msg.Payload.(LatencyRequest)
	if !ok {
		t.Fatalf("expected LatencyRequest, got %T", msg.Payload)
	}
	wantTs := DateTime(time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC))
	if !req.Timestamp.Equal(wantTs) {
		t.Errorf("timestamp: got %v, want %v", req.Timestamp, wantTs)
	}
}

func TestDecodeUnknownDiscriminator(t *testing.T) {
	_, err := Decode(`{"type":"bogus"}`)
	if err == nil {
		t.Fatal("expected error for unknown discriminator")
	}
	var malformed *MalformedError
	if !asMalformed(err, &malformed) {
		t.Errorf("expected *MalformedError, got %T", err)
	}
}

func TestDecodeMissingRequiredField(t *testing.T) {
	_, err := Decode(`{"type":"control"}`)
	if err == nil {
		t.Fatal("expected error for missing axes")
	}
	if !strings.Contains(err.Error(), "axes") {
		t.Errorf("error should mention missing field, got %v", err)
	}
}

func TestDecodeTypeMismatch(t *testing.T) {
	_, err := Decode(`{"type":"control","axes":"not-an-array"}`)
	if err == nil {
		t.Fatal("expected error for axes type mismatch")
	}
}

func TestDecodeExtraUnknownFieldPermitted(t *testing.T) {
	text := `{"type":"control","axes":[0.1,0.2],"extra":"field"}`
	msg, err := Decode(text)
	if err != nil {
		t.Fatalf("unexpected error for forward-compatible extra field: %v", err)
	}
	if len(msg.Payload.(Control).Axes) != 2 {
		t.Errorf("axes not decoded correctly: %+v", msg.Payload)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode(`not json`)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func asMalformed(err error, target **MalformedError) bool {
	m, ok := err.(*MalformedError)
	if !ok {
		return false
	}
	*target = m
	return true
}
