package client

import (
	"encoding/json"
	"testing"

	"github.com/2run66/freecord/internal/domain"
)

func msg(id string) Message {
	return Message{ID: id, Raw: json.RawMessage(`{"id":"` + id + `"}`)}
}

func ids(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestMessageCacheAddPrependsToFirstPage(t *testing.T) {
	var mc MessageCache
	mc.SetPages([][]Message{
		{msg("m3"), msg("m2")},
		{msg("m1")},
	})
	mc.Add(msg("m4"))

	if got := ids(mc.Messages()); !sameIDs(got, []string{"m4", "m3", "m2", "m1"}) {
		t.Fatalf("messages = %v", got)
	}
}

func TestMessageCacheAddWithoutSeededPages(t *testing.T) {
	var mc MessageCache
	mc.Add(msg("m1"))
	mc.Add(msg("m2"))
	if got := ids(mc.Messages()); !sameIDs(got, []string{"m2", "m1"}) {
		t.Fatalf("messages = %v", got)
	}
}

func TestMessageCacheUpdateInPlace(t *testing.T) {
	var mc MessageCache
	mc.SetPages([][]Message{
		{msg("m3"), msg("m2")},
		{msg("m1")},
	})
	edited := Message{ID: "m1", Raw: json.RawMessage(`{"id":"m1","content":"edited"}`)}
	mc.Update(edited)

	ms := mc.Messages()
	if got := ids(ms); !sameIDs(got, []string{"m3", "m2", "m1"}) {
		t.Fatalf("update reordered the cache: %v", got)
	}
	if string(ms[2].Raw) != string(edited.Raw) {
		t.Fatalf("m1 body = %s", ms[2].Raw)
	}

	// Unknown id: the page holding it was never fetched. No-op.
	mc.Update(msg("m99"))
	if got := len(mc.Messages()); got != 3 {
		t.Fatalf("unknown update changed the cache size to %d", got)
	}
}

func TestMessageCacheRemove(t *testing.T) {
	var mc MessageCache
	mc.SetPages([][]Message{
		{msg("m3"), msg("m2")},
		{msg("m1")},
	})
	mc.Remove("m2")
	if got := ids(mc.Messages()); !sameIDs(got, []string{"m3", "m1"}) {
		t.Fatalf("messages after remove = %v", got)
	}
	mc.Remove("m2") // already gone
	if got := len(mc.Messages()); got != 2 {
		t.Fatalf("repeated remove changed the cache size to %d", got)
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID string
		wantOK bool
	}{
		{"valid", `{"id":"m1","content":"hi"}`, "m1", true},
		{"no id", `{"content":"hi"}`, "", false},
		{"malformed", `{`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := decodeMessage(json.RawMessage(tt.raw))
			if ok != tt.wantOK || m.ID != tt.wantID {
				t.Fatalf("decodeMessage = (%q, %v), want (%q, %v)", m.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestRosterApplyJoinedReplacesOnRejoin(t *testing.T) {
	var r Roster
	r.ApplyJoined(domain.Participant{UserID: "u1", UserName: "alice"})
	r.ApplyJoined(domain.Participant{UserID: "u2", UserName: "bob"})
	r.ApplyJoined(domain.Participant{UserID: "u1", UserName: "alice the great"})

	ps := r.Participants()
	if len(ps) != 2 {
		t.Fatalf("roster size = %d, want rejoin to replace", len(ps))
	}
	if ps[0].UserID != "u1" || ps[0].UserName != "alice the great" {
		t.Fatalf("rejoin did not update in place: %+v", ps[0])
	}
	if ps[1].UserID != "u2" {
		t.Fatalf("roster order changed: %+v", ps)
	}
}

func TestRosterApplyLeft(t *testing.T) {
	var r Roster
	r.Set([]domain.Participant{{UserID: "u1"}, {UserID: "u2"}, {UserID: "u3"}})
	r.ApplyLeft("u2")

	ps := r.Participants()
	if len(ps) != 2 || ps[0].UserID != "u1" || ps[1].UserID != "u3" {
		t.Fatalf("roster after leave = %+v", ps)
	}
	r.ApplyLeft("u2") // already gone
	if got := len(r.Participants()); got != 2 {
		t.Fatalf("repeated leave changed roster size to %d", got)
	}
}

func TestRosterParticipantsIsACopy(t *testing.T) {
	var r Roster
	r.Set([]domain.Participant{{UserID: "u1", UserName: "alice"}})
	ps := r.Participants()
	ps[0].UserName = "mutated"
	if got := r.Participants()[0].UserName; got != "alice" {
		t.Fatalf("caller mutation leaked into the roster: %q", got)
	}
}

func TestStateLazyAllocation(t *testing.T) {
	s := newState()
	s.chat("chat1").Add(msg("m1"))
	if got := ids(s.chat("chat1").Messages()); !sameIDs(got, []string{"m1"}) {
		t.Fatalf("chat cache lost its message: %v", got)
	}
	s.roster("v1").ApplyJoined(domain.Participant{UserID: "u1"})
	if got := len(s.roster("v1").Participants()); got != 1 {
		t.Fatalf("roster lost its participant: %d", got)
	}
}
