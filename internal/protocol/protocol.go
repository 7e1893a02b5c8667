// Package protocol defines the JSON wire format exchanged over WebSocket.
//
// Every frame is a text message holding an Envelope:
//
//	{"event": "private_message", "data": {"recipient": "dev-2", "message": "hi"}}
//
// Events that carry a single device ID use a bare JSON string as data.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/devicechat/internal/model"
)

// Errors
var (
	ErrMissingEvent = errors.New("frame has no event name")
	ErrEmptyPayload = errors.New("event requires a payload")
)

// Inbound event names.
const (
	EventCheckRegistration = "check_registration"
	EventRegister          = "register"
	EventLoadUsers         = "load_users"
	EventLoadMessages      = "load_messages"
	EventPrivateMessage    = "private_message"
	EventGetUserInfo       = "get_user_info"
	EventGetUserStatus     = "get_user_status"
	EventTyping            = "typing"
	EventStopTyping        = "stop_typing"
)

// Outbound event names. load_messages, private_message, typing and
// stop_typing reuse the inbound names.
const (
	EventRegistrationStatus = "registration_status"
	EventUsers              = "users"
	EventUserInfo           = "user_info"
	EventUserStatus         = "user_status"
	EventUserStatusUpdate   = "user_status_update"
)

// Envelope is a single frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterRequest is the register payload.
type RegisterRequest struct {
	DeviceID        string `json:"deviceId" validate:"required,max=256"`
	Username        string `json:"username" validate:"required,max=256"`
	ProfileImageURL string `json:"profileImageUrl" validate:"omitempty,max=2048"`
}

// LoadMessagesRequest is the load_messages payload.
type LoadMessagesRequest struct {
	Sender    string `json:"sender" validate:"required"`
	Recipient string `json:"recipient" validate:"required"`
}

// PrivateMessageRequest is the inbound private_message payload.
type PrivateMessageRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Message   string `json:"message"`
}

// RegistrationStatus answers check_registration.
type RegistrationStatus struct {
	IsRegistered    bool   `json:"isRegistered"`
	UserName        string `json:"userName,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// PrivateMessage is delivered to the recipient of a direct message.
type PrivateMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// UserStatus answers get_user_status.
type UserStatus struct {
	Status model.Status `json:"status"`
}

// UserStatusUpdate is broadcast when a device's displayed status changes.
type UserStatusUpdate struct {
	DeviceID string       `json:"device_id"`
	Status   model.Status `json:"status"`
}

// Encode builds a frame for event with data as payload. A nil data omits the field.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return env, nil
}

// DecodeString parses a payload that is a single JSON string.
func (e Envelope) DecodeString() (string, error) {
	if len(e.Data) == 0 {
		return "", ErrEmptyPayload
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return s, nil
}

// DecodeInto parses an object payload into v.
func (e Envelope) DecodeInto(v any) error {
	if len(e.Data) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}
