package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is a device's displayed presence.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"

	// StatusTyping is only ever broadcast. It is never stored on a Device.
	StatusTyping Status = "typing"
)

// Durable reports whether s may be persisted on a Device.
func (s Status) Durable() bool {
	return s == StatusOnline || s == StatusOffline
}

// Device is a registered client identity and its stored profile.
type Device struct {
	ID              string    `json:"device_id"`
	Username        string    `json:"username"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Status          Status    `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Message is a direct message between two devices. Immutable once stored.
type Message struct {
	ID          uuid.UUID `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewMessage builds a message stamped with a fresh ID and the current UTC time.
func NewMessage(senderID, recipientID, body string) Message {
	return Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		Timestamp:   time.Now().UTC(),
	}
}

// Between reports whether m was exchanged between a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) ||
		(m.SenderID == b && m.RecipientID == a)
}

// Roster is the full set of known devices.
type Roster []Device
