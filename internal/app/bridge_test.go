package app

import (
	"encoding/json"
	"testing"

	"github.com/2run66/freecord/internal/core"
	"github.com/2run66/freecord/internal/protocol"
)

func TestBridgeUnboundIsNoOp(t *testing.T) {
	b := NewBridge()
	// Must not panic before Bind.
	b.PublishCreated("chat1", json.RawMessage(`{"id":"m1"}`))
	b.PublishUpdated("chat1", json.RawMessage(`{"id":"m1"}`))
	b.PublishDeleted("chat1", "m1")
}

func TestBridgeForwardsAfterBind(t *testing.T) {
	d := NewDispatcher(core.NewRegistry())
	sub := &fakeSig{}
	d.Connect("cs", sub)
	d.JoinChat("cs", protocol.ChatJoin{ChatID: "chat1", UserID: "u1"})

	b := NewBridge()
	b.PublishCreated("chat1", json.RawMessage(`{"id":"m0"}`)) // dropped, unbound
	b.Bind(d)
	b.PublishCreated("chat1", json.RawMessage(`{"id":"m1"}`))

	got := sub.events()
	if !eventsEqual(got, []string{protocol.EvMessageReceived}) {
		t.Fatalf("subscriber saw %v, want only the post-bind publish", got)
	}
	var p protocol.MessageReceived
	if err := json.Unmarshal(sub.last().Data, &p); err != nil {
		t.Fatal(err)
	}
	if string(p.Message) != `{"id":"m1"}` {
		t.Fatalf("delivered message = %s", p.Message)
	}
}

func TestBridgePublishToEmptyRoom(t *testing.T) {
	b := NewBridge()
	b.Bind(NewDispatcher(core.NewRegistry()))
	// Zero subscribers is not an error.
	b.PublishDeleted("nobody-here", "m1")
}
