package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/2run66/freecord/internal/app"
	"github.com/2run66/freecord/internal/domain"
	"github.com/2run66/freecord/internal/store"
	"github.com/2run66/freecord/internal/tokens"
)

// fakePresence keys rows by channel+user and ages them out the same way
// the real store does, minus the database.
type fakePresence struct {
	rows map[string]store.VoiceParticipant
	ttl  time.Duration
	now  time.Time
	fail error
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		rows: make(map[string]store.VoiceParticipant),
		ttl:  30 * time.Second,
		now:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func key(ch domain.ChannelID, user domain.UserID) string {
	return string(ch) + "/" + string(user)
}

func (f *fakePresence) Join(_ context.Context, ch domain.ChannelID, id domain.Identity) (store.VoiceParticipant, error) {
	if f.fail != nil {
		return store.VoiceParticipant{}, f.fail
	}
	k := key(ch, id.UserID)
	if row, ok := f.rows[k]; ok {
		return row, nil
	}
	row := store.VoiceParticipant{
		UserID:     id.UserID,
		ChannelID:  ch,
		UserName:   id.UserName,
		UserAvatar: id.UserAvatar,
		JoinedAt:   f.now,
		LastSeen:   f.now,
	}
	f.rows[k] = row
	return row, nil
}

func (f *fakePresence) Leave(_ context.Context, ch domain.ChannelID, user domain.UserID) error {
	if f.fail != nil {
		return f.fail
	}
	delete(f.rows, key(ch, user))
	return nil
}

func (f *fakePresence) Heartbeat(_ context.Context, ch domain.ChannelID, user domain.UserID) error {
	if f.fail != nil {
		return f.fail
	}
	if row, ok := f.rows[key(ch, user)]; ok {
		row.LastSeen = f.now
		f.rows[key(ch, user)] = row
	}
	return nil
}

func (f *fakePresence) Participants(_ context.Context, ch domain.ChannelID) ([]store.VoiceParticipant, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	cutoff := f.now.Add(-f.ttl)
	out := []store.VoiceParticipant{}
	for k, row := range f.rows {
		if row.ChannelID != ch {
			continue
		}
		if row.LastSeen.Before(cutoff) {
			delete(f.rows, k)
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakePresence) Cleanup(_ context.Context) (int64, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	cutoff := f.now.Add(-f.ttl)
	var removed int64
	for k, row := range f.rows {
		if row.LastSeen.Before(cutoff) {
			delete(f.rows, k)
			removed++
		}
	}
	return removed, nil
}

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")
	vc := api.Group("/voice-channels")
	vc.POST("/:channelId/join", h.VoiceJoin)
	vc.DELETE("/:channelId/leave", h.VoiceLeave)
	vc.POST("/:channelId/heartbeat", h.VoiceHeartbeat)
	vc.GET("/:channelId/participants", h.VoiceParticipants)
	vc.POST("/cleanup", h.VoiceCleanup)
	chats := api.Group("/chats")
	chats.POST("/:chatId/messages", h.MessageCreated)
	chats.PATCH("/:chatId/messages", h.MessageUpdated)
	chats.DELETE("/:chatId/messages/:messageId", h.MessageDeleted)
	api.POST("/media/token", h.MediaToken)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVoiceJoinIdempotent(t *testing.T) {
	fp := newFakePresence()
	r := newTestRouter(&Handlers{Presence: fp, Bridge: app.NewBridge()})

	body := `{"userId":"u1","userName":"alice","userAvatar":"a.png"}`
	w := doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/join", body)
	if w.Code != http.StatusOK {
		t.Fatalf("first join status = %d, body %s", w.Code, w.Body)
	}
	var first store.VoiceParticipant
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.UserID != "u1" || first.ChannelID != "v1" || first.UserName != "alice" {
		t.Fatalf("join row = %+v", first)
	}

	// Second join with a changed name returns the original row.
	fp.now = fp.now.Add(5 * time.Second)
	w = doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/join", `{"userId":"u1","userName":"renamed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("second join status = %d", w.Code)
	}
	var second store.VoiceParticipant
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second.UserName != "alice" || !second.JoinedAt.Equal(first.JoinedAt) {
		t.Fatalf("repeated join did not return the original row: %+v", second)
	}
}

func TestVoiceJoinRejectsBadBody(t *testing.T) {
	r := newTestRouter(&Handlers{Presence: newFakePresence(), Bridge: app.NewBridge()})
	w := doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/join", `{"userId":"u1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing userName", w.Code)
	}
}

func TestVoiceLeave(t *testing.T) {
	fp := newFakePresence()
	r := newTestRouter(&Handlers{Presence: fp, Bridge: app.NewBridge()})
	doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/join", `{"userId":"u1","userName":"alice"}`)

	w := doJSON(t, r, http.MethodDelete, "/api/voice-channels/v1/leave", `{"userId":"u1"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("leave status = %d, want 204", w.Code)
	}
	if len(fp.rows) != 0 {
		t.Fatal("row survived the leave")
	}

	// Leaving again is fine.
	w = doJSON(t, r, http.MethodDelete, "/api/voice-channels/v1/leave", `{"userId":"u1"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("repeated leave status = %d, want 204", w.Code)
	}
}

func TestVoiceParticipantsSweepsStale(t *testing.T) {
	fp := newFakePresence()
	r := newTestRouter(&Handlers{Presence: fp, Bridge: app.NewBridge()})
	doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/join", `{"userId":"u1","userName":"alice"}`)
	doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/join", `{"userId":"u2","userName":"bob"}`)

	// Only bob keeps heartbeating.
	fp.now = fp.now.Add(31 * time.Second)
	doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/heartbeat", `{"userId":"u2"}`)
	fp.now = fp.now.Add(time.Second)

	w := doJSON(t, r, http.MethodGet, "/api/voice-channels/v1/participants", "")
	if w.Code != http.StatusOK {
		t.Fatalf("participants status = %d", w.Code)
	}
	var rows []store.VoiceParticipant
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].UserID != "u2" {
		t.Fatalf("roster after sweep = %+v, want only bob", rows)
	}
}

func TestVoiceCleanup(t *testing.T) {
	fp := newFakePresence()
	r := newTestRouter(&Handlers{Presence: fp, Bridge: app.NewBridge()})
	doJSON(t, r, http.MethodPost, "/api/voice-channels/v1/join", `{"userId":"u1","userName":"alice"}`)
	doJSON(t, r, http.MethodPost, "/api/voice-channels/v2/join", `{"userId":"u2","userName":"bob"}`)

	fp.now = fp.now.Add(time.Minute)
	w := doJSON(t, r, http.MethodPost, "/api/voice-channels/cleanup", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", w.Code)
	}
	var resp struct {
		Success      bool  `json:"success"`
		RemovedCount int64 `json:"removedCount"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.RemovedCount != 2 {
		t.Fatalf("cleanup response = %+v, want 2 removed", resp)
	}
}

func TestPresenceRoutesWithoutDatabase(t *testing.T) {
	r := newTestRouter(&Handlers{Presence: nil, Bridge: app.NewBridge()})
	paths := []struct{ method, path, body string }{
		{http.MethodPost, "/api/voice-channels/v1/join", `{"userId":"u1","userName":"alice"}`},
		{http.MethodDelete, "/api/voice-channels/v1/leave", `{"userId":"u1"}`},
		{http.MethodPost, "/api/voice-channels/v1/heartbeat", `{"userId":"u1"}`},
		{http.MethodGet, "/api/voice-channels/v1/participants", ""},
		{http.MethodPost, "/api/voice-channels/cleanup", ""},
	}
	for _, p := range paths {
		w := doJSON(t, r, p.method, p.path, p.body)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s status = %d, want 503", p.method, p.path, w.Code)
		}
	}
}

func TestPresenceStoreFailure(t *testing.T) {
	fp := newFakePresence()
	fp.fail = errors.New("db down")
	r := newTestRouter(&Handlers{Presence: fp, Bridge: app.NewBridge()})
	w := doJSON(t, r, http.MethodGet, "/api/voice-channels/v1/participants", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 on store failure", w.Code)
	}
}

func TestMessagePublishRoutes(t *testing.T) {
	// An unbound bridge drops publishes but the HTTP surface still
	// acknowledges: delivery is best-effort.
	r := newTestRouter(&Handlers{Bridge: app.NewBridge()})

	w := doJSON(t, r, http.MethodPost, "/api/chats/chat1/messages", `{"message":{"id":"m1","content":"hi"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body)
	}
	w = doJSON(t, r, http.MethodPatch, "/api/chats/chat1/messages", `{"message":{"id":"m1","content":"edit"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodDelete, "/api/chats/chat1/messages/m1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/chats/chat1/messages", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("create without message status = %d, want 400", w.Code)
	}
}

func TestMediaToken(t *testing.T) {
	r := newTestRouter(&Handlers{Bridge: app.NewBridge(), Minter: tokens.NewMinter("key", "secret", time.Minute)})

	w := doJSON(t, r, http.MethodPost, "/api/media/token", `{"room":"v1","username":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}

	w = doJSON(t, r, http.MethodPost, "/api/media/token", `{"room":"v1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing username status = %d, want 400", w.Code)
	}
}

func TestMediaTokenUnconfigured(t *testing.T) {
	r := newTestRouter(&Handlers{Bridge: app.NewBridge(), Minter: tokens.NewMinter("", "", time.Minute)})
	w := doJSON(t, r, http.MethodPost, "/api/media/token", `{"room":"v1","username":"alice"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when credentials missing", w.Code)
	}
}
