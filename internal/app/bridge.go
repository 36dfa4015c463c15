package app

import (
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/domain"
	"github.com/2run66/freecord/internal/metrics"
)

// Bridge is the narrow publish interface through which the HTTP write
// path reaches the socket subsystem. The registry stays private to the
// dispatcher; HTTP handlers only ever see this type.
//
// Every publish is fire-and-forget: no subscribers means a silent no-op,
// and a publish before Bind degrades to a warning log. The HTTP write
// must never fail because realtime delivery did.
type Bridge struct {
	d atomic.Pointer[Dispatcher]
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// Bind attaches the dispatcher. Called once at process start, after the
// socket subsystem is constructed.
func (b *Bridge) Bind(d *Dispatcher) {
	b.d.Store(d)
}

func (b *Bridge) PublishCreated(chat domain.ChatID, message json.RawMessage) {
	d := b.d.Load()
	if d == nil {
		log.Warn().Str("module", "app.bridge").Str("chat", string(chat)).Msg("publish before dispatcher bound, dropping message-created")
		return
	}
	metrics.BridgePublishes.WithLabelValues("created").Inc()
	d.PublishCreated(chat, message)
}

func (b *Bridge) PublishUpdated(chat domain.ChatID, message json.RawMessage) {
	d := b.d.Load()
	if d == nil {
		log.Warn().Str("module", "app.bridge").Str("chat", string(chat)).Msg("publish before dispatcher bound, dropping message-updated")
		return
	}
	metrics.BridgePublishes.WithLabelValues("updated").Inc()
	d.PublishUpdated(chat, message)
}

func (b *Bridge) PublishDeleted(chat domain.ChatID, messageID string) {
	d := b.d.Load()
	if d == nil {
		log.Warn().Str("module", "app.bridge").Str("chat", string(chat)).Msg("publish before dispatcher bound, dropping message-deleted")
		return
	}
	metrics.BridgePublishes.WithLabelValues("deleted").Inc()
	d.PublishDeleted(chat, messageID)
}
