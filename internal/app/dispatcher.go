package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/core"
	"github.com/2run66/freecord/internal/domain"
	"github.com/2run66/freecord/internal/metrics"
	"github.com/2run66/freecord/internal/protocol"
)

// Dispatcher translates protocol events into registry mutations and
// decides what broadcasts result. It owns the ordering invariants: a
// listener must never observe a user in two voice rooms, so a join that
// displaces an earlier room emits the synthetic leave first.
type Dispatcher struct {
	reg *core.Registry
}

func NewDispatcher(reg *core.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Connect registers a fresh transport session.
func (d *Dispatcher) Connect(cid core.ConnID, sig core.SignalConnection) {
	d.reg.Register(cid, sig)
	metrics.Connections.Set(float64(d.reg.ConnCount()))
}

// JoinVoice moves the connection into a voice room. Identity is attached
// lazily here (last write wins). If the connection was in a different
// room, the old room sees a leave before the new room sees the join.
func (d *Dispatcher) JoinVoice(cid core.ConnID, p protocol.VoiceJoin) {
	id := domain.Identity{UserID: p.UserID, UserName: p.UserName, UserAvatar: p.UserAvatar}
	if !d.reg.Identify(cid, id) {
		log.Warn().Str("module", "app.dispatcher").Str("cid", string(cid)).Msg("voice join for unknown connection")
		return
	}
	prev, _ := d.reg.SetVoiceRoom(cid, p.ChannelID)
	if prev != "" && prev != p.ChannelID {
		// Synthetic leave: the client skipped voice-channel-leave.
		log.Info().Str("module", "app.dispatcher").Str("cid", string(cid)).
			Str("from", string(prev)).Str("to", string(p.ChannelID)).Msg("synthesizing leave for previous voice room")
		d.broadcastVoice(prev, protocol.EvUserLeft, protocol.UserLeft{UserID: p.UserID, ChannelID: prev})
	}
	d.broadcastVoice(p.ChannelID, protocol.EvUserJoined, protocol.UserJoined{
		UserID:     p.UserID,
		UserName:   p.UserName,
		UserAvatar: p.UserAvatar,
		ChannelID:  p.ChannelID,
	})
	log.Info().Str("module", "app.dispatcher").Str("user", string(p.UserID)).
		Str("channel", string(p.ChannelID)).Msg("user joined voice channel")
}

// LeaveVoice handles an explicit leave. A channel id that does not match
// the recorded room is a stale or duplicate event: ignored, but logged.
// The departure is broadcast to the full room, leaver included, so the
// leaver's own presence list converges through the same path.
func (d *Dispatcher) LeaveVoice(cid core.ConnID, p protocol.VoiceLeave) {
	cur := d.reg.VoiceRoom(cid)
	if cur != p.ChannelID {
		log.Warn().Str("module", "app.dispatcher").Str("cid", string(cid)).
			Str("claimed", string(p.ChannelID)).Str("actual", string(cur)).Msg("stale voice leave ignored")
		return
	}
	d.broadcastVoice(p.ChannelID, protocol.EvUserLeft, protocol.UserLeft{UserID: p.UserID, ChannelID: p.ChannelID})
	d.reg.SetVoiceRoom(cid, "")
	log.Info().Str("module", "app.dispatcher").Str("user", string(p.UserID)).
		Str("channel", string(p.ChannelID)).Msg("user left voice channel")
}

// Participants unicasts the current roster to the requester only.
func (d *Dispatcher) Participants(cid core.ConnID, sig core.SignalConnection, p protocol.VoiceParticipantsReq) {
	snap := d.reg.Snapshot(p.ChannelID)
	frame, err := protocol.Marshal(protocol.EvParticipants, protocol.Participants{
		ChannelID:    p.ChannelID,
		Participants: snap,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatcher").Msg("marshal participants")
		return
	}
	if err := sig.TrySend(core.Frame(frame)); err != nil {
		metrics.DroppedFrames.Inc()
		log.Warn().Str("module", "app.dispatcher").Str("cid", string(cid)).Msg("participants unicast dropped")
	}
}

// Heartbeat is a liveness signal only; it mutates nothing in the
// registry. The persisted presence mirror is refreshed over REST.
func (d *Dispatcher) Heartbeat(cid core.ConnID, p protocol.VoiceHeartbeat) {
	log.Debug().Str("module", "app.dispatcher").Str("cid", string(cid)).
		Str("user", string(p.UserID)).Str("channel", string(p.ChannelID)).Msg("voice heartbeat")
}

// JoinChat subscribes the connection to a chat room. No exclusivity: a
// connection may hold many chat rooms at once.
func (d *Dispatcher) JoinChat(cid core.ConnID, p protocol.ChatJoin) {
	if !d.reg.AddChatRoom(cid, p.ChatID) {
		log.Warn().Str("module", "app.dispatcher").Str("cid", string(cid)).Msg("chat join for unknown connection")
		return
	}
	log.Debug().Str("module", "app.dispatcher").Str("user", string(p.UserID)).
		Str("chat", string(p.ChatID)).Msg("joined chat room")
}

func (d *Dispatcher) LeaveChat(cid core.ConnID, p protocol.ChatLeave) {
	d.reg.RemoveChatRoom(cid, p.ChatID)
	log.Debug().Str("module", "app.dispatcher").Str("chat", string(p.ChatID)).Msg("left chat room")
}

// RelayCreated fans a socket-originated new message out to the chat
// room, excluding the sender.
func (d *Dispatcher) RelayCreated(cid core.ConnID, p protocol.MessageEvent) {
	d.broadcastChat(p.ChatID, cid, protocol.EvMessageReceived, protocol.MessageReceived{ChatID: p.ChatID, Message: p.Message})
}

func (d *Dispatcher) RelayUpdated(cid core.ConnID, p protocol.MessageEvent) {
	d.broadcastChat(p.ChatID, cid, protocol.EvMessageChanged, protocol.MessageReceived{ChatID: p.ChatID, Message: p.Message})
}

func (d *Dispatcher) RelayDeleted(cid core.ConnID, p protocol.MessageDelete) {
	d.broadcastChat(p.ChatID, cid, protocol.EvMessageRemoved, protocol.MessageRemoved{ChatID: p.ChatID, MessageID: p.MessageID})
}

// PublishCreated delivers an HTTP-originated message event to every
// subscriber of the chat room. Called through the Bridge.
func (d *Dispatcher) PublishCreated(chat domain.ChatID, message json.RawMessage) {
	d.broadcastChat(chat, "", protocol.EvMessageReceived, protocol.MessageReceived{ChatID: chat, Message: message})
}

func (d *Dispatcher) PublishUpdated(chat domain.ChatID, message json.RawMessage) {
	d.broadcastChat(chat, "", protocol.EvMessageChanged, protocol.MessageReceived{ChatID: chat, Message: message})
}

func (d *Dispatcher) PublishDeleted(chat domain.ChatID, messageID string) {
	d.broadcastChat(chat, "", protocol.EvMessageRemoved, protocol.MessageRemoved{ChatID: chat, MessageID: messageID})
}

// Disconnect is the terminal transition: the connection and all of its
// memberships are removed; if it held a voice room, the remaining
// members see exactly one leave broadcast.
func (d *Dispatcher) Disconnect(cid core.ConnID) {
	ch, id, named := d.reg.Deregister(cid)
	metrics.Connections.Set(float64(d.reg.ConnCount()))
	if ch == "" || !named {
		return
	}
	d.broadcastVoice(ch, protocol.EvUserLeft, protocol.UserLeft{UserID: id.UserID, ChannelID: ch})
	log.Info().Str("module", "app.dispatcher").Str("user", string(id.UserID)).
		Str("channel", string(ch)).Msg("disconnected while in voice channel")
}

// broadcastVoice marshals once and delivers to every member of the voice
// room. A slow subscriber drops its frame; the rest of the fanout
// continues.
func (d *Dispatcher) broadcastVoice(ch domain.ChannelID, event string, payload any) {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatcher").Str("event", event).Msg("marshal broadcast")
		return
	}
	dropped := 0
	for _, sig := range d.reg.VoiceMembers(ch) {
		if err := sig.TrySend(core.Frame(frame)); err != nil {
			dropped++
		}
	}
	metrics.Broadcasts.WithLabelValues("voice", event).Inc()
	if dropped > 0 {
		metrics.DroppedFrames.Add(float64(dropped))
		log.Warn().Str("module", "app.dispatcher").Str("event", event).
			Str("channel", string(ch)).Int("dropped", dropped).Msg("broadcast dropped frames")
	}
}

func (d *Dispatcher) broadcastChat(chat domain.ChatID, except core.ConnID, event string, payload any) {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatcher").Str("event", event).Msg("marshal broadcast")
		return
	}
	dropped := 0
	for _, sig := range d.reg.ChatMembers(chat, except) {
		if err := sig.TrySend(core.Frame(frame)); err != nil {
			dropped++
		}
	}
	metrics.Broadcasts.WithLabelValues("chat", event).Inc()
	if dropped > 0 {
		metrics.DroppedFrames.Add(float64(dropped))
		log.Warn().Str("module", "app.dispatcher").Str("event", event).
			Str("chat", string(chat)).Int("dropped", dropped).Msg("broadcast dropped frames")
	}
}
