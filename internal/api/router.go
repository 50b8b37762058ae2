package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/api/handlers"
	"github.com/brainskev/houseListing2-sub000/internal/api/middleware"
	"github.com/brainskev/houseListing2-sub000/internal/config"
	"github.com/brainskev/houseListing2-sub000/internal/email"
	"github.com/brainskev/houseListing2-sub000/internal/realtime"
	"github.com/brainskev/houseListing2-sub000/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(
	cfg *config.Config,
	log *zap.Logger,
	chatService services.IChatService,
	inboxService services.IInboxService,
	userService services.IUserService,
	hub *realtime.Hub,
) *gin.Engine {
	r := gin.New()

	// Apply global middleware first (order matters)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORSMiddleware(cfg.WsAllowedOrigin))

	// Initialize handlers
	restChatHandler := handlers.NewRestChatHandler(chatService, inboxService, cfg.ChatPollInterval)
	restUserHandler := handlers.NewRestUserHandler(userService)
	wsHandler := handlers.NewWebsocketHandler(cfg, hub, chatService, log)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Browsers cannot send headers on the upgrade request.
		v1.GET("/ws", middleware.WebsocketAuthMiddleware(cfg.JwtSecret), wsHandler.Serve)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/enquiries", restChatHandler.CreateEnquiry)
			authRequired.GET("/conversations", restChatHandler.ListConversations)
			authRequired.GET("/conversations/:id/messages", restChatHandler.GetMessages)
			authRequired.POST("/conversations/:id/messages", restChatHandler.AppendMessage)
			authRequired.POST("/conversations/:id/read", restChatHandler.MarkRead)
			authRequired.GET("/inbox", restChatHandler.Inbox)
			authRequired.GET("/users/:id", restUserHandler.GetUserByID)
			authRequired.GET("/staff", middleware.StaffMiddleware(), restUserHandler.ListStaff)
		}
	}

	return r
}

// SetupServiceRouter configures the internal service API used by operators and
// end-to-end tests. getTestEmail requires rdb and MOCK_SERVICES mail capture.
func SetupServiceRouter(log *zap.Logger, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info("received shutdown command via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Warn("shutdown channel already signaled")
			}
		case "getTestEmail":
			getTestEmail(c, log, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

const (
	testEmailPollAttempts = 10
	testEmailPollDelay    = 200 * time.Millisecond
)

// getTestEmail expects arguments ["kind", "email"] and returns the captured mail.
func getTestEmail(c *gin.Context, log *zap.Logger, rdb *redis.Client, arguments json.RawMessage) {
	if rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Mail capture is not enabled"})
		return
	}
	var args []string
	if err := json.Unmarshal(arguments, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
		return
	}
	redisKey := email.MockEmailKey(args[1], email.Kind(args[0]))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var data string
	found := false
	for i := 0; i < testEmailPollAttempts; i++ {
		var err error
		data, err = rdb.Get(ctx, redisKey).Result()
		if err == nil {
			found = true
			rdb.Del(ctx, redisKey)
			break
		}
		if !errors.Is(err, redis.Nil) {
			log.Error("service API redis lookup failed", zap.String("key", redisKey), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(testEmailPollDelay)
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
		return
	}

	var emailData map[string]interface{}
	if err := json.Unmarshal([]byte(data), &emailData); err != nil {
		log.Error("stored test email is not JSON", zap.String("key", redisKey), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})
}
