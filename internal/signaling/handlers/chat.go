package handlers

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/broadcast"
	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

const defaultChatHistoryLimit = 50

// ChatSendRequest carries one outgoing text message.
type ChatSendRequest struct {
	Body string `json:"body"`
}

// ChatMessageWire is the broadcast/response shape of one chat message.
type ChatMessageWire struct {
	ChannelID identifiers.ChannelID `json:"channel_id"`
	SenderID  identifiers.UserID    `json:"sender_id"`
	Body      string                `json:"body"`
	SentAt    time.Time             `json:"sent_at"`
}

// ChatSend persists a message to the caller's current channel and
// broadcasts it to the rest of the channel's members.
func (d *Dependencies) ChatSend(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	ch := sess.Channel()
	if ch.IsNil() {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "not in a channel"}
	}

	payload, err := signaling.DecodePayload[ChatSendRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	if payload.Body == "" {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "body is required"}
	}

	msg := &models.ChatMessage{ChannelID: ch, SenderID: sess.ID, Body: payload.Body, SentAt: time.Now()}
	if err := d.Chat.SaveMessage(msg); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "saving message"}
	}

	wire := ChatMessageWire{ChannelID: ch, SenderID: sess.ID, Body: payload.Body, SentAt: msg.SentAt}
	d.Broadcaster.Broadcast(broadcast.Event{
		Kind:    broadcast.KindChat,
		Channel: ch,
		Payload: mustMarshal(wire),
	}, identifiers.UserID{})

	return wire, nil
}

// ChatHistoryRequest optionally overrides the default page size.
type ChatHistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ChatHistoryResponse carries the most recent messages, newest first.
type ChatHistoryResponse struct {
	Messages []ChatMessageWire `json:"messages"`
}

// ChatHistory returns the caller's current channel's recent messages.
func (d *Dependencies) ChatHistory(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	ch := sess.Channel()
	if ch.IsNil() {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "not in a channel"}
	}

	payload, err := signaling.DecodePayload[ChatHistoryRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultChatHistoryLimit
	}

	history, err := d.Chat.History(ch, limit)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "loading history"}
	}

	out := make([]ChatMessageWire, 0, len(history))
	for _, m := range history {
		out = append(out, ChatMessageWire{ChannelID: m.ChannelID, SenderID: m.SenderID, Body: m.Body, SentAt: m.SentAt})
	}
	return ChatHistoryResponse{Messages: out}, nil
}
