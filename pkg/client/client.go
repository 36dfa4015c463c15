// Package client is the companion piece of the realtime protocol: a
// reflector that subscribes to broadcast events and applies incremental
// updates to locally cached message pages and presence rosters. The
// server stores no history, so a reconnecting client must re-fetch via
// the REST read path and rely on the stream only from that point on.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/domain"
	"github.com/2run66/freecord/internal/protocol"
)

// EventHandler observes every decoded server event after the local
// caches were updated. Optional.
type EventHandler func(event string, data json.RawMessage)

type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	state   *state
	handler EventHandler

	done     chan struct{}
	doneOnce sync.Once
}

// Dial connects to the server's socket endpoint, e.g.
// "ws://localhost:8080/api/socket/io", and starts the read loop.
func Dial(ctx context.Context, url string, handler EventHandler) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		state:   newState(),
		handler: handler,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down; the server treats it as disconnect.
func (c *Client) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

// Done is closed when the read loop exits (server gone or Close called).
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Maintain dials and redials until ctx is cancelled. onConnect runs after
// every successful dial; since the server stores no history, this is where
// the caller re-joins its rooms and re-seeds message pages.
func Maintain(ctx context.Context, url string, handler EventHandler, backoff time.Duration, onConnect func(*Client)) {
	for {
		c, err := Dial(ctx, url, handler)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("dial failed, retrying")
		} else {
			if onConnect != nil {
				onConnect(c)
			}
			select {
			case <-c.Done():
				log.Info().Str("module", "client").Msg("connection lost, reconnecting")
			case <-ctx.Done():
				_ = c.Close()
				return
			}
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(protocol.Envelope{Event: event, Data: raw})
}

// JoinVoice announces this identity into a voice channel.
func (c *Client) JoinVoice(ch domain.ChannelID, id domain.Identity) error {
	return c.send(protocol.EvVoiceJoin, protocol.VoiceJoin{
		ChannelID:  ch,
		UserID:     id.UserID,
		UserName:   id.UserName,
		UserAvatar: id.UserAvatar,
	})
}

func (c *Client) LeaveVoice(ch domain.ChannelID, id domain.Identity) error {
	return c.send(protocol.EvVoiceLeave, protocol.VoiceLeave{
		ChannelID: ch,
		UserID:    id.UserID,
		UserName:  id.UserName,
	})
}

// RequestParticipants asks for the current roster; the reply lands in
// the local roster cache when it arrives.
func (c *Client) RequestParticipants(ch domain.ChannelID) error {
	return c.send(protocol.EvVoiceParticipants, protocol.VoiceParticipantsReq{ChannelID: ch})
}

func (c *Client) Heartbeat(ch domain.ChannelID, user domain.UserID) error {
	return c.send(protocol.EvVoiceHeartbeat, protocol.VoiceHeartbeat{ChannelID: ch, UserID: user})
}

func (c *Client) JoinChat(chat domain.ChatID, user domain.UserID) error {
	return c.send(protocol.EvChatJoin, protocol.ChatJoin{ChatID: chat, UserID: user})
}

func (c *Client) LeaveChat(chat domain.ChatID, user domain.UserID) error {
	return c.send(protocol.EvChatLeave, protocol.ChatLeave{ChatID: chat, UserID: user})
}

// SendMessage relays an already-persisted message to other subscribers.
func (c *Client) SendMessage(chat domain.ChatID, message json.RawMessage) error {
	return c.send(protocol.EvMessageSent, protocol.MessageEvent{ChatID: chat, Message: message})
}

func (c *Client) UpdateMessage(chat domain.ChatID, message json.RawMessage) error {
	return c.send(protocol.EvMessageUpdated, protocol.MessageEvent{ChatID: chat, Message: message})
}

func (c *Client) DeleteMessage(chat domain.ChatID, messageID string) error {
	return c.send(protocol.EvMessageDeleted, protocol.MessageDelete{ChatID: chat, MessageID: messageID})
}

// SeedMessages installs history fetched through the REST read path.
func (c *Client) SeedMessages(chat domain.ChatID, pages [][]Message) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.chat(chat).SetPages(pages)
}

// Messages returns the reflected message list for a chat, newest first.
func (c *Client) Messages(chat domain.ChatID) []Message {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.chat(chat).Messages()
}

// Participants returns the reflected roster of a voice channel.
func (c *Client) Participants(ch domain.ChannelID) []domain.Participant {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.roster(ch).Participants()
}

func (c *Client) readLoop() {
	defer c.doneOnce.Do(func() { close(c.done) })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("read loop closed")
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad server envelope")
			continue
		}
		c.apply(env)
		if c.handler != nil {
			c.handler(env.Event, env.Data)
		}
	}
}

// apply folds one server event into the local caches. Unknown events
// are passed to the handler untouched; the protocol may grow.
func (c *Client) apply(env protocol.Envelope) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	switch env.Event {
	case protocol.EvUserJoined:
		var p protocol.UserJoined
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		c.state.roster(p.ChannelID).ApplyJoined(domain.Participant{
			UserID:     p.UserID,
			UserName:   p.UserName,
			UserAvatar: p.UserAvatar,
		})
	case protocol.EvUserLeft:
		var p protocol.UserLeft
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		c.state.roster(p.ChannelID).ApplyLeft(p.UserID)
	case protocol.EvParticipants:
		var p protocol.Participants
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		c.state.roster(p.ChannelID).Set(p.Participants)
	case protocol.EvMessageReceived:
		var p protocol.MessageReceived
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		if m, ok := decodeMessage(p.Message); ok {
			c.state.chat(p.ChatID).Add(m)
		}
	case protocol.EvMessageChanged:
		var p protocol.MessageReceived
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		if m, ok := decodeMessage(p.Message); ok {
			c.state.chat(p.ChatID).Update(m)
		}
	case protocol.EvMessageRemoved:
		var p protocol.MessageRemoved
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		c.state.chat(p.ChatID).Remove(p.MessageID)
	}
}
