// Package protocol implements the wire message set exchanged between
// pilots, vehicles, and the broker: a discriminated JSON object with a
// "type" tag and one of four payload shapes.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Id is a 128-bit identifier rendered as its canonical lowercase
// hyphenated text form on the wire.
type Id = uuid.UUID

// ClientType distinguishes the two client roles.
type ClientType string

const (
	ClientTypePilot   ClientType = "pilot"
	ClientTypeVehicle ClientType = "vehicle"
)

func (c ClientType) valid() bool {
	return c == ClientTypePilot || c == ClientTypeVehicle
}

// MessageType is the "type" discriminator tag.
type MessageType string

const (
	TypeIdentification  MessageType = "identification"
	TypeControl         MessageType = "control"
	TypeLatencyRequest  MessageType = "latency_request"
	TypeLatencyResponse MessageType = "latency_response"
)

// DateTime is an instant serialized as an RFC-3339 UTC string.
type DateTime time.Time

// Time returns the underlying time.Time value.
func (d DateTime) Time() time.Time { return time.Time(d) }

// Equal reports whether d and o refer to the same instant.
func (d DateTime) Equal(o DateTime) bool { return time.Time(d).Equal(time.Time(o)) }

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).UTC().Format(time.RFC3339Nano))
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	*d = DateTime(t)
	return nil
}

// Payload is implemented by the four message variants.
type Payload interface {
	messageType() MessageType
}

// Identification identifies a connection's id, group, and role.
type Identification struct {
	Id         Id
	GroupId    Id
	ClientType ClientType
}

func (Identification) messageType() MessageType { return TypeIdentification }

// Control carries the pilot's current control-axis values.
type Control struct {
	Axes []float64
}

func (Control) messageType() MessageType { return TypeControl }

// LatencyRequest is a latency probe from the connection named by
// InitiatorId; the broker fans it out to the opposite-role peers in the
// sender's group, like Control.
type LatencyRequest struct {
	InitiatorId Id
	Timestamp   DateTime
}

func (LatencyRequest) messageType() MessageType { return TypeLatencyRequest }

// LatencyResponse echoes a LatencyRequest's timestamp back to its
// initiator, stamped with the responder's id.
type LatencyResponse struct {
	InitiatorId Id
	ResponderId Id
	Timestamp   DateTime
}

func (LatencyResponse) messageType() MessageType { return TypeLatencyResponse }

// Message is the tagged union exchanged over the wire.
type Message struct {
	Payload Payload
}

// Type returns the message's discriminator.
func (m Message) Type() MessageType { return m.Payload.messageType() }

// MalformedError reports that a text frame did not decode into a valid
// Message: unknown discriminator, missing required field, or a field
// whose JSON shape does not match its declared type.
type MalformedError struct {
	Cause error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Cause)
}

func (e *MalformedError) Unwrap() error { return e.Cause }

func malformed(format string, args ...any) error {
	return &MalformedError{Cause: fmt.Errorf(format, args...)}
}

// Decode parses one JSON text frame into a Message. Unknown discriminators
// and missing required fields for the selected variant are malformed;
// extra unknown fields are accepted for forward compatibility.
func Decode(text string) (Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Message{}, malformed("invalid JSON object: %w", err)
	}

	typeRaw, ok := raw["type"]
	if !ok {
		return Message{}, malformed(`missing "type" field`)
	}
	var typ string
	if err := json.Unmarshal(typeRaw, &typ); err != nil {
		return Message{}, malformed(`"type" field: %w`, err)
	}

	switch MessageType(typ) {
	case TypeIdentification:
		return decodeIdentification(text, raw)
	case TypeControl:
		return decodeControl(text, raw)
	case TypeLatencyRequest:
		return decodeLatencyRequest(text, raw)
	case TypeLatencyResponse:
		return decodeLatencyResponse(text, raw)
	default:
		return Message{}, malformed("unknown message type %q", typ)
	}
}

func requireFields(raw map[string]json.RawMessage, fields ...string) error {
	var missing []string
	for _, f := range fields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func decodeIdentification(text string, raw map[string]json.RawMessage) (Message, error) {
	if err := requireFields(raw, "id", "group_id", "client_type"); err != nil {
		return Message{}, &MalformedError{Cause: err}
	}
	var data struct {
		Id         Id         `json:"id"`
		GroupId    Id         `json:"group_id"`
		ClientType ClientType `json:"client_type"`
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return Message{}, malformed("identification: %w", err)
	}
	if !data.ClientType.valid() {
		return Message{}, malformed("identification: invalid client_type %q", data.ClientType)
	}
	return Message{Payload: Identification{Id: data.Id, GroupId: data.GroupId, ClientType: data.ClientType}}, nil
}

func decodeControl(text string, raw map[string]json.RawMessage) (Message, error) {
	if err := requireFields(raw, "axes"); err != nil {
		return Message{}, &MalformedError{Cause: err}
	}
	var data struct {
		Axes []float64 `json:"axes"`
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return Message{}, malformed("control: %w", err)
	}
	return Message{Payload: Control{Axes: data.Axes}}, nil
}

func decodeLatencyRequest(text string, raw map[string]json.RawMessage) (Message, error) {
	if err := requireFields(raw, "initiator_id", "timestamp"); err != nil {
		return Message{}, &MalformedError{Cause: err}
	}
	var data struct {
		InitiatorId Id       `json:"initiator_id"`
		Timestamp   DateTime `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return Message{}, malformed("latency_request: %w", err)
	}
	return Message{Payload: LatencyRequest{InitiatorId: data.InitiatorId, Timestamp: data.Timestamp}}, nil
}

func decodeLatencyResponse(text string, raw map[string]json.RawMessage) (Message, error) {
	if err := requireFields(raw, "initiator_id", "responder_id", "timestamp"); err != nil {
		return Message{}, &MalformedError{Cause: err}
	}
	var data struct {
		InitiatorId Id       `json:"initiator_id"`
		ResponderId Id       `json:"responder_id"`
		Timestamp   DateTime `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return Message{}, malformed("latency_response: %w", err)
	}
	return Message{Payload: LatencyResponse{
		InitiatorId: data.InitiatorId,
		ResponderId: data.ResponderId,
		Timestamp:   data.Timestamp,
	}}, nil
}

// Encode serializes a Message to a single-line JSON object. It is a total
// function over the four known Payload variants.
func Encode(m Message) string {
	var b []byte
	switch p := m.Payload.(type) {
	case Identification:
		b, _ = json.Marshal(struct {
			Type       MessageType `json:"type"`
			Id         Id          `json:"id"`
			GroupId    Id          `json:"group_id"`
			ClientType ClientType  `json:"client_type"`
		}{TypeIdentification, p.Id, p.GroupId, p.ClientType})
	case Control:
		axes := p.Axes
		if axes == nil {
			axes = []float64{}
		}
		b, _ = json.Marshal(struct {
			Type MessageType `json:"type"`
			Axes []float64   `json:"axes"`
		}{TypeControl, axes})
	case LatencyRequest:
		b, _ = json.Marshal(struct {
			Type        MessageType `json:"type"`
			InitiatorId Id          `json:"initiator_id"`
			Timestamp   DateTime    `json:"timestamp"`
		}{TypeLatencyRequest, p.InitiatorId, p.Timestamp})
	case LatencyResponse:
		b, _ = json.Marshal(struct {
			Type        MessageType `json:"type"`
			InitiatorId Id          `json:"initiator_id"`
			ResponderId Id          `json:"responder_id"`
			Timestamp   DateTime    `json:"timestamp"`
		}{TypeLatencyResponse, p.InitiatorId, p.ResponderId, p.Timestamp})
	default:
		panic(fmt.Sprintf("protocol: encode called with unknown payload type %T", p))
	}
	return string(b)
}
