package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/app"
	"github.com/2run66/freecord/internal/domain"
	"github.com/2run66/freecord/internal/store"
	"github.com/2run66/freecord/internal/tokens"
)

// PresenceStore is what the REST mirror handlers need from persistence.
type PresenceStore interface {
	Join(ctx context.Context, ch domain.ChannelID, id domain.Identity) (store.VoiceParticipant, error)
	Leave(ctx context.Context, ch domain.ChannelID, user domain.UserID) error
	Heartbeat(ctx context.Context, ch domain.ChannelID, user domain.UserID) error
	Participants(ctx context.Context, ch domain.ChannelID) ([]store.VoiceParticipant, error)
	Cleanup(ctx context.Context) (int64, error)
}

type Handlers struct {
	Presence PresenceStore // nil when no database is configured
	Bridge   *app.Bridge
	Minter   *tokens.Minter
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type identityRequest struct {
	UserID     domain.UserID `json:"userId" binding:"required,max=64"`
	UserName   string        `json:"userName" binding:"required,max=64"`
	UserAvatar string        `json:"userAvatar" binding:"max=256"`
}

type userRequest struct {
	UserID domain.UserID `json:"userId" binding:"required,max=64"`
}

func (h *Handlers) presenceReady(c *gin.Context) bool {
	if h.Presence == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence mirror not configured"})
		return false
	}
	return true
}

// VoiceJoin records the user in the persisted mirror. Idempotent: a
// repeated join returns the original row.
func (h *Handlers) VoiceJoin(c *gin.Context) {
	if !h.presenceReady(c) {
		return
	}
	ch := domain.ChannelID(c.Param("channelId"))
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid identity"})
		return
	}
	row, err := h.Presence.Join(c.Request.Context(), ch, domain.Identity{
		UserID:     req.UserID,
		UserName:   req.UserName,
		UserAvatar: req.UserAvatar,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Str("channel", string(ch)).Msg("voice join")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *Handlers) VoiceLeave(c *gin.Context) {
	if !h.presenceReady(c) {
		return
	}
	ch := domain.ChannelID(c.Param("channelId"))
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}
	if err := h.Presence.Leave(c.Request.Context(), ch, req.UserID); err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Str("channel", string(ch)).Msg("voice leave")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) VoiceHeartbeat(c *gin.Context) {
	if !h.presenceReady(c) {
		return
	}
	ch := domain.ChannelID(c.Param("channelId"))
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}
	if err := h.Presence.Heartbeat(c.Request.Context(), ch, req.UserID); err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Str("channel", string(ch)).Msg("voice heartbeat")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// VoiceParticipants sweeps stale rows for the channel, then returns the
// survivors ordered by join time.
func (h *Handlers) VoiceParticipants(c *gin.Context) {
	if !h.presenceReady(c) {
		return
	}
	ch := domain.ChannelID(c.Param("channelId"))
	rows, err := h.Presence.Participants(c.Request.Context(), ch)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Str("channel", string(ch)).Msg("voice participants")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) VoiceCleanup(c *gin.Context) {
	if !h.presenceReady(c) {
		return
	}
	removed, err := h.Presence.Cleanup(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("voice cleanup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removedCount": removed})
}

type messageRequest struct {
	Message json.RawMessage `json:"message" binding:"required"`
}

// MessageCreated forwards an already-persisted message document to the
// chat room's subscribers. The store-owning collaborator calls this
// right after its own write commits; delivery is best-effort.
func (h *Handlers) MessageCreated(c *gin.Context) {
	chat := domain.ChatID(c.Param("chatId"))
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message"})
		return
	}
	h.Bridge.PublishCreated(chat, req.Message)
	c.JSON(http.StatusOK, gin.H{"published": true})
}

func (h *Handlers) MessageUpdated(c *gin.Context) {
	chat := domain.ChatID(c.Param("chatId"))
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message"})
		return
	}
	h.Bridge.PublishUpdated(chat, req.Message)
	c.JSON(http.StatusOK, gin.H{"published": true})
}

func (h *Handlers) MessageDeleted(c *gin.Context) {
	chat := domain.ChatID(c.Param("chatId"))
	id := c.Param("messageId")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message id"})
		return
	}
	h.Bridge.PublishDeleted(chat, id)
	c.JSON(http.StatusOK, gin.H{"published": true})
}

type mediaTokenRequest struct {
	Room     string `json:"room" binding:"required,max=64"`
	Username string `json:"username" binding:"required,max=64"`
	Metadata string `json:"metadata" binding:"max=512"`
}

// MediaToken mints a room-access token for the external media server.
func (h *Handlers) MediaToken(c *gin.Context) {
	var req mediaTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing room or username"})
		return
	}
	tok, err := h.Minter.RoomToken(req.Room, req.Username, req.Metadata)
	if err != nil {
		if errors.Is(err, tokens.ErrNotConfigured) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server misconfigured"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("media token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}
