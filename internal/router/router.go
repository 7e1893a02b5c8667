// Package router implements the Message Router: direct messages are
// persisted first and then relayed to the recipient's live session.
//
// There is no acknowledgment, retry or offline queue. A recipient that was
// not connected recovers the message through LoadHistory.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/rickgao/devicechat/internal/connection"
	"github.com/rickgao/devicechat/internal/model"
	"github.com/rickgao/devicechat/internal/protocol"
	"github.com/rickgao/devicechat/internal/session"
	"github.com/rickgao/devicechat/internal/store"
)

// Router persists and relays direct messages.
type Router struct {
	messages store.MessageStore
	registry *session.Registry
	sender   connection.Sender
	logger   *slog.Logger

	sent          atomic.Int64
	delivered     atomic.Int64
	persistErrors atomic.Int64
}

// NewRouter creates a Message Router.
func NewRouter(messages store.MessageStore, registry *session.Registry, sender connection.Sender, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		messages: messages,
		registry: registry,
		sender:   sender,
		logger:   logger,
	}
}

// Send stores a message from senderID to recipientID and relays it to the
// recipient if connected. Nothing is delivered unless the store write succeeds.
// It reports whether the message was handed to a live session.
func (r *Router) Send(ctx context.Context, senderID, recipientID, body string) (model.Message, bool, error) {
	if senderID == "" {
		return model.Message{}, false, ErrUnregisteredSender
	}
	if recipientID == "" {
		return model.Message{}, false, ErrMissingRecipient
	}

	msg := model.NewMessage(senderID, recipientID, body)
	if err := r.messages.Insert(ctx, msg); err != nil {
		r.persistErrors.Add(1)
		return model.Message{}, false, fmt.Errorf("persist message %s: %w", msg.ID, err)
	}
	r.sent.Add(1)

	sessionID, ok := r.registry.Resolve(recipientID)
	if !ok {
		r.logger.Debug("recipient offline, message stored only",
			"message_id", msg.ID,
			"recipient", recipientID,
		)
		return msg, false, nil
	}

	frame, err := protocol.Encode(protocol.EventPrivateMessage, protocol.PrivateMessage{
		Sender:  senderID,
		Message: body,
	})
	if err != nil {
		return msg, false, err
	}

	if !r.sender.Deliver(sessionID, frame) {
		r.logger.Debug("recipient session not reachable",
			"message_id", msg.ID,
			"recipient", recipientID,
			"session_id", sessionID,
		)
		return msg, false, nil
	}
	r.delivered.Add(1)
	return msg, true, nil
}

// LoadHistory returns every message exchanged between a and b, oldest first.
func (r *Router) LoadHistory(ctx context.Context, a, b string) ([]model.Message, error) {
	history, err := r.messages.Between(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("load history %s<->%s: %w", a, b, err)
	}
	if history == nil {
		history = []model.Message{}
	}
	slices.SortStableFunc(history, func(x, y model.Message) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	return history, nil
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		MessagesSent:      r.sent.Load(),
		MessagesDelivered: r.delivered.Load(),
		PersistErrors:     r.persistErrors.Load(),
	}
}
