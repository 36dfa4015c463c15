// Package httpapi wires the HTTP surface: the socket endpoint, the
// persisted presence mirror routes, the HTTP->socket message publish
// path, media token minting, and metrics.
package httpapi

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/2run66/freecord/internal/adapters/signal"
	"github.com/2run66/freecord/internal/config"
)

// ClientTokenMiddleware gives every browser a stable opaque token; it
// stands in for the external auth provider's session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, ctl *signal.Controller, h *Handlers) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("FreecordSessions", store))
	r.Use(ClientTokenMiddleware())

	// Socket endpoint lives on its own path, apart from the REST surface.
	r.GET(cfg.SocketPath, ctl.Handle)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

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

	log.Info().Str("module", "adapters.httpapi").Str("socket_path", cfg.SocketPath).Msg("router setup")
	return r
}
