package signal

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/core"
	"github.com/2run66/freecord/internal/protocol"
)

// writePump drains the send channel to the network and keeps the
// transport alive with periodic pings. A missed pong on the peer side
// surfaces as a read error in readPump, which owns the cleanup.
func (ctl *Controller) writePump(c *WsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames until the transport errors out. Exit always runs
// the disconnect transition; the registry cleanup must never be skipped.
func (ctl *Controller) readPump(cid core.ConnID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		ctl.Dispatcher.Disconnect(cid)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait)); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("readPump set deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleEvent(cid, c, data)
	}
}

// handleEvent decodes and validates one inbound envelope and routes it.
// Every failure is local: log, skip, keep the connection alive.
func (ctl *Controller) handleEvent(cid core.ConnID, c *WsConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad envelope")
		return
	}

	switch env.Event {
	case protocol.EvVoiceJoin:
		var p protocol.VoiceJoin
		if !ctl.decode(cid, env, &p) {
			return
		}
		if !ctl.joins.Allow(p.UserID) {
			log.Warn().Str("module", "signal").Str("user", string(p.UserID)).Msg("voice join rate limited")
			return
		}
		ctl.Dispatcher.JoinVoice(cid, p)
	case protocol.EvVoiceLeave:
		var p protocol.VoiceLeave
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.LeaveVoice(cid, p)
		}
	case protocol.EvVoiceParticipants:
		var p protocol.VoiceParticipantsReq
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.Participants(cid, c, p)
		}
	case protocol.EvVoiceHeartbeat:
		var p protocol.VoiceHeartbeat
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.Heartbeat(cid, p)
		}
	case protocol.EvChatJoin:
		var p protocol.ChatJoin
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.JoinChat(cid, p)
		}
	case protocol.EvChatLeave:
		var p protocol.ChatLeave
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.LeaveChat(cid, p)
		}
	case protocol.EvMessageSent:
		var p protocol.MessageEvent
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.RelayCreated(cid, p)
		}
	case protocol.EvMessageUpdated:
		var p protocol.MessageEvent
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.RelayUpdated(cid, p)
		}
	case protocol.EvMessageDeleted:
		var p protocol.MessageDelete
		if ctl.decode(cid, env, &p) {
			ctl.Dispatcher.RelayDeleted(cid, p)
		}
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
	}
}

func (ctl *Controller) decode(cid core.ConnID, env protocol.Envelope, dst any) bool {
	if err := protocol.Decode(env.Data, dst); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).
			Str("event", env.Event).Msg("rejected payload")
		return false
	}
	return true
}
