// Package protocol defines the wire schema of the realtime channel: one
// JSON envelope both directions, a fixed payload struct per event name,
// validated on receipt. Payloads that fail validation are rejected by the
// caller (log + ignore), never trusted.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/2run66/freecord/internal/domain"
)

// Inbound event names (client -> server).
const (
	EvVoiceJoin         = "voice-channel-join"
	EvVoiceLeave        = "voice-channel-leave"
	EvVoiceParticipants = "voice-channel-get-participants"
	EvVoiceHeartbeat    = "voice-channel-heartbeat"
	EvChatJoin          = "chat-join"
	EvChatLeave         = "chat-leave"
	EvMessageSent       = "message-sent"
	EvMessageUpdated    = "message-updated"
	EvMessageDeleted    = "message-deleted"
)

// Outbound event names (server -> client).
const (
	EvUserJoined      = "voice-channel-user-joined"
	EvUserLeft        = "voice-channel-user-left"
	EvParticipants    = "voice-channel-participants"
	EvMessageReceived = "message-received"
	EvMessageChanged  = "message-changed"
	EvMessageRemoved  = "message-removed"
)

var ErrUnknownEvent = errors.New("unknown event")

var validate = validator.New()

// Envelope is the framing shared by both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type VoiceJoin struct {
	ChannelID  domain.ChannelID `json:"channelId" validate:"required,max=64"`
	UserID     domain.UserID    `json:"userId" validate:"required,max=64"`
	UserName   string           `json:"userName" validate:"required,max=64"`
	UserAvatar string           `json:"userAvatar,omitempty" validate:"max=256"`
}

type VoiceLeave struct {
	ChannelID domain.ChannelID `json:"channelId" validate:"required,max=64"`
	UserID    domain.UserID    `json:"userId" validate:"required,max=64"`
	UserName  string           `json:"userName,omitempty" validate:"max=64"`
}

type VoiceParticipantsReq struct {
	ChannelID domain.ChannelID `json:"channelId" validate:"required,max=64"`
}

type VoiceHeartbeat struct {
	ChannelID domain.ChannelID `json:"channelId" validate:"required,max=64"`
	UserID    domain.UserID    `json:"userId" validate:"required,max=64"`
}

type ChatJoin struct {
	ChatID domain.ChatID `json:"chatId" validate:"required,max=64"`
	UserID domain.UserID `json:"userId" validate:"required,max=64"`
}

type ChatLeave struct {
	ChatID domain.ChatID `json:"chatId" validate:"required,max=64"`
	UserID domain.UserID `json:"userId,omitempty" validate:"max=64"`
}

// MessageEvent carries an opaque message document; this layer never
// interprets message content.
type MessageEvent struct {
	ChatID  domain.ChatID   `json:"chatId" validate:"required,max=64"`
	Message json.RawMessage `json:"message" validate:"required"`
}

type MessageDelete struct {
	ChatID    domain.ChatID `json:"chatId" validate:"required,max=64"`
	MessageID string        `json:"messageId" validate:"required,max=64"`
}

// Outbound payloads.

type UserJoined struct {
	UserID     domain.UserID    `json:"userId"`
	UserName   string           `json:"userName"`
	UserAvatar string           `json:"userAvatar,omitempty"`
	ChannelID  domain.ChannelID `json:"channelId"`
}

type UserLeft struct {
	UserID    domain.UserID    `json:"userId"`
	ChannelID domain.ChannelID `json:"channelId"`
}

type Participants struct {
	ChannelID    domain.ChannelID     `json:"channelId"`
	Participants []domain.Participant `json:"participants"`
}

// MessageReceived is the create/update envelope, fanned out verbatim.
type MessageReceived struct {
	ChatID  domain.ChatID   `json:"chatId"`
	Message json.RawMessage `json:"message"`
}

type MessageRemoved struct {
	ChatID    domain.ChatID `json:"chatId"`
	MessageID string        `json:"messageId"`
}

// Decode unmarshals an inbound payload into dst and validates it against
// the event's schema.
func Decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// Marshal frames an outbound event. A marshal failure here is a
// programming error in the payload type, surfaced to the caller.
func Marshal(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
