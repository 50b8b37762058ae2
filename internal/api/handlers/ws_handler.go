package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/api/middleware"
	"github.com/brainskev/houseListing2-sub000/internal/config"
	"github.com/brainskev/houseListing2-sub000/internal/realtime"
)

// WebsocketHandler upgrades authenticated requests into realtime gateway clients.
type WebsocketHandler struct {
	hub       *realtime.Hub
	auth      realtime.Authorizer
	clientCfg realtime.ClientConfig
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

func NewWebsocketHandler(cfg *config.Config, hub *realtime.Hub, auth realtime.Authorizer, log *zap.Logger) *WebsocketHandler {
	allowed := cfg.WsAllowedOrigin
	return &WebsocketHandler{
		hub:  hub,
		auth: auth,
		clientCfg: realtime.ClientConfig{
			SendBuffer:   cfg.WsSendBuffer,
			InboundRate:  cfg.WsInboundRate,
			InboundBurst: cfg.WsInboundBurst,
			PingInterval: cfg.WsPingInterval,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowed == "" || allowed == "*" || origin == "" || origin == allowed
			},
		},
		log: log,
	}
}

// Serve handles GET /v1/ws. It blocks until the connection closes.
func (h *WebsocketHandler) Serve(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	realtime.NewClient(conn, session, h.hub, h.auth, h.clientCfg, h.log).Run(c.Request.Context())
}
