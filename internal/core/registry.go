package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/domain"
)

// connState is the per-connection record. The registry is the only
// component allowed to mutate it.
type connState struct {
	id        ConnID
	sig       SignalConnection
	identity  domain.Identity
	named     bool
	voiceRoom domain.ChannelID
	voiceSeq  uint64
	chatRooms map[domain.ChatID]struct{}
}

// Registry is the single authoritative map from connection id to
// connection state, plus reverse indices per voice room and chat room so
// fanout is O(room size) rather than O(all connections).
type Registry struct {
	mu      sync.RWMutex
	conns   map[ConnID]*connState
	byVoice map[domain.ChannelID]map[ConnID]struct{}
	byChat  map[domain.ChatID]map[ConnID]struct{}
	seq     uint64
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[ConnID]*connState),
		byVoice: make(map[domain.ChannelID]map[ConnID]struct{}),
		byChat:  make(map[domain.ChatID]map[ConnID]struct{}),
	}
}

// Register creates an empty state record for a new transport session.
// Idempotent: re-registering an id keeps the existing record but swaps the
// send handle, so a reconnect on the same id does not orphan the new pipe.
func (r *Registry) Register(cid ConnID, sig SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.conns[cid]; ok {
		st.sig = sig
		log.Debug().Str("module", "core.registry").Str("cid", string(cid)).Msg("re-registered connection")
		return
	}
	r.conns[cid] = &connState{
		id:        cid,
		sig:       sig,
		chatRooms: make(map[domain.ChatID]struct{}),
	}
	log.Info().Str("module", "core.registry").Str("cid", string(cid)).Msg("registered connection")
}

// Identify attaches identity to a connection. Safe to call repeatedly;
// last write wins (a user may update their display name mid-session).
func (r *Registry) Identify(cid ConnID, id domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[cid]
	if !ok {
		return false
	}
	st.identity = id
	st.named = true
	log.Debug().Str("module", "core.registry").Str("cid", string(cid)).Str("user", string(id.UserID)).Msg("identified connection")
	return true
}

// Identity returns the connection's declared identity, if any.
func (r *Registry) Identity(cid ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.conns[cid]
	if !ok || !st.named {
		return domain.Identity{}, false
	}
	return st.identity, true
}

// VoiceRoom reports which voice room the connection currently holds,
// "" meaning none.
func (r *Registry) VoiceRoom(cid ConnID) domain.ChannelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.conns[cid]; ok {
		return st.voiceRoom
	}
	return ""
}

// SetVoiceRoom moves the connection between voice rooms in one step:
// it is removed from the previous room's index (if any) and added to the
// new one (if non-empty) under the same lock, so there is no window where
// the connection is visible in zero or two rooms. Returns the previous
// room id.
func (r *Registry) SetVoiceRoom(cid ConnID, ch domain.ChannelID) (prev domain.ChannelID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, found := r.conns[cid]
	if !found {
		return "", false
	}
	prev = st.voiceRoom
	if prev == ch {
		return prev, true
	}
	if prev != "" {
		r.dropVoiceLocked(prev, cid)
	}
	st.voiceRoom = ch
	if ch != "" {
		set, exists := r.byVoice[ch]
		if !exists {
			set = make(map[ConnID]struct{})
			r.byVoice[ch] = set
		}
		set[cid] = struct{}{}
		r.seq++
		st.voiceSeq = r.seq
	} else {
		st.voiceSeq = 0
	}
	log.Debug().Str("module", "core.registry").Str("cid", string(cid)).
		Str("from", string(prev)).Str("to", string(ch)).Msg("moved voice room")
	return prev, true
}

// AddChatRoom subscribes the connection to a chat room. Idempotent.
func (r *Registry) AddChatRoom(cid ConnID, chat domain.ChatID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[cid]
	if !ok {
		return false
	}
	st.chatRooms[chat] = struct{}{}
	set, exists := r.byChat[chat]
	if !exists {
		set = make(map[ConnID]struct{})
		r.byChat[chat] = set
	}
	set[cid] = struct{}{}
	return true
}

// RemoveChatRoom unsubscribes the connection from a chat room. Idempotent.
func (r *Registry) RemoveChatRoom(cid ConnID, chat domain.ChatID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[cid]
	if !ok {
		return
	}
	delete(st.chatRooms, chat)
	r.dropChatLocked(chat, cid)
}

// Snapshot returns the roster of a voice room ordered by join sequence.
// Connections that never identified are skipped: they hold the slot but
// have nothing presentable to show.
func (r *Registry) Snapshot(ch domain.ChannelID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type entry struct {
		seq uint64
		p   domain.Participant
	}
	members := make([]entry, 0, len(r.byVoice[ch]))
	for cid := range r.byVoice[ch] {
		st := r.conns[cid]
		if st == nil || !st.named {
			continue
		}
		members = append(members, entry{seq: st.voiceSeq, p: domain.Participant{
			UserID:     st.identity.UserID,
			UserName:   st.identity.UserName,
			UserAvatar: st.identity.UserAvatar,
		}})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })
	out := make([]domain.Participant, len(members))
	for i, m := range members {
		out[i] = m.p
	}
	return out
}

// VoiceMembers returns the send handles of every connection in a voice
// room. Fanout iterates the result outside the lock.
func (r *Registry) VoiceMembers(ch domain.ChannelID) []SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SignalConnection, 0, len(r.byVoice[ch]))
	for cid := range r.byVoice[ch] {
		if st := r.conns[cid]; st != nil && st.sig != nil {
			out = append(out, st.sig)
		}
	}
	return out
}

// ChatMembers returns the send handles of every subscriber of a chat
// room, excluding the given connection id ("" excludes nobody).
func (r *Registry) ChatMembers(chat domain.ChatID, except ConnID) []SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SignalConnection, 0, len(r.byChat[chat]))
	for cid := range r.byChat[chat] {
		if cid == except {
			continue
		}
		if st := r.conns[cid]; st != nil && st.sig != nil {
			out = append(out, st.sig)
		}
	}
	return out
}

// Deregister removes the connection and every room membership it holds,
// returning the voice room it was last in (if any) so the caller can
// trigger a departure broadcast.
func (r *Registry) Deregister(cid ConnID) (domain.ChannelID, domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[cid]
	if !ok {
		return "", domain.Identity{}, false
	}
	if st.voiceRoom != "" {
		r.dropVoiceLocked(st.voiceRoom, cid)
	}
	for chat := range st.chatRooms {
		r.dropChatLocked(chat, cid)
	}
	delete(r.conns, cid)
	log.Info().Str("module", "core.registry").Str("cid", string(cid)).Msg("deregistered connection")
	return st.voiceRoom, st.identity, st.named
}

// ConnCount reports the number of live connections.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) dropVoiceLocked(ch domain.ChannelID, cid ConnID) {
	if set, ok := r.byVoice[ch]; ok {
		delete(set, cid)
		if len(set) == 0 {
			delete(r.byVoice, ch)
		}
	}
}

func (r *Registry) dropChatLocked(chat domain.ChatID, cid ConnID) {
	if set, ok := r.byChat[chat]; ok {
		delete(set, cid)
		if len(set) == 0 {
			delete(r.byChat, chat)
		}
	}
}
