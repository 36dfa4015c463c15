package client

import (
	"encoding/json"
	"sync"

	"github.com/2run66/freecord/internal/domain"
)

// Message is one cached message document. The body stays opaque; only
// the id is lifted out so incremental updates can find their target.
type Message struct {
	ID  string
	Raw json.RawMessage
}

func decodeMessage(raw json.RawMessage) (Message, bool) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
		return Message{}, false
	}
	return Message{ID: probe.ID, Raw: raw}, true
}

// MessageCache mirrors the paged message list a chat view holds: page
// zero is the most recent. Pages are seeded from a history fetch; the
// socket stream then applies incremental updates.
type MessageCache struct {
	pages [][]Message
}

// SetPages replaces the cache with freshly fetched history.
func (mc *MessageCache) SetPages(pages [][]Message) {
	mc.pages = pages
}

// Add prepends a newly created message to the first page.
func (mc *MessageCache) Add(m Message) {
	if len(mc.pages) == 0 {
		mc.pages = [][]Message{{}}
	}
	mc.pages[0] = append([]Message{m}, mc.pages[0]...)
}

// Update replaces the message in whichever page holds it. Unknown ids
// are ignored: the page holding them was simply never fetched.
func (mc *MessageCache) Update(m Message) {
	for pi, page := range mc.pages {
		for i, cur := range page {
			if cur.ID == m.ID {
				mc.pages[pi][i] = m
				return
			}
		}
	}
}

// Remove deletes the message from whichever page holds it.
func (mc *MessageCache) Remove(id string) {
	for pi, page := range mc.pages {
		for i, cur := range page {
			if cur.ID == id {
				mc.pages[pi] = append(page[:i:i], page[i+1:]...)
				return
			}
		}
	}
}

// Messages returns all cached messages, newest page first.
func (mc *MessageCache) Messages() []Message {
	var out []Message
	for _, page := range mc.pages {
		out = append(out, page...)
	}
	return out
}

// Roster is the locally reflected participant list of one voice room.
type Roster struct {
	participants []domain.Participant
}

// Set replaces the roster with a full snapshot.
func (r *Roster) Set(ps []domain.Participant) {
	r.participants = append([]domain.Participant(nil), ps...)
}

// ApplyJoined appends a participant. Re-joins replace the existing
// entry in place so a rename or avatar change takes effect.
func (r *Roster) ApplyJoined(p domain.Participant) {
	for i, cur := range r.participants {
		if cur.UserID == p.UserID {
			r.participants[i] = p
			return
		}
	}
	r.participants = append(r.participants, p)
}

// ApplyLeft removes the participant by id.
func (r *Roster) ApplyLeft(id domain.UserID) {
	for i, cur := range r.participants {
		if cur.UserID == id {
			r.participants = append(r.participants[:i:i], r.participants[i+1:]...)
			return
		}
	}
}

// Participants returns a copy of the current roster.
func (r *Roster) Participants() []domain.Participant {
	return append([]domain.Participant(nil), r.participants...)
}

// state is the reflector's full local view: one cache per chat room,
// one roster per voice room.
type state struct {
	mu      sync.RWMutex
	chats   map[domain.ChatID]*MessageCache
	rosters map[domain.ChannelID]*Roster
}

func newState() *state {
	return &state{
		chats:   make(map[domain.ChatID]*MessageCache),
		rosters: make(map[domain.ChannelID]*Roster),
	}
}

func (s *state) chat(id domain.ChatID) *MessageCache {
	if mc, ok := s.chats[id]; ok {
		return mc
	}
	mc := &MessageCache{}
	s.chats[id] = mc
	return mc
}

func (s *state) roster(id domain.ChannelID) *Roster {
	if r, ok := s.rosters[id]; ok {
		return r
	}
	r := &Roster{}
	s.rosters[id] = r
	return r
}
