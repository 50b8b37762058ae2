package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brainskev/houseListing2-sub000/internal/auth"
	"github.com/brainskev/houseListing2-sub000/internal/models"
)

const (
	// ContextKeySession holds the key for the acting models.Session in Gin context.
	ContextKeySession = "session"
)

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("Authorization header required")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("Authorization header format must be Bearer {token}")
	}
	return parts[1], nil
}

func authenticate(c *gin.Context, tokenString, jwtSecret string) {
	session, err := auth.SessionFromToken(tokenString, jwtSecret)
	if err != nil {
		errMsg := fmt.Sprintf("Invalid or expired token: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
		return
	}
	c.Set(ContextKeySession, session)
	c.Next()
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		authenticate(c, tokenString, jwtSecret)
	}
}

// WebsocketAuthMiddleware accepts the token as a ?token= query parameter, because
// browsers cannot set headers on a websocket handshake. The header still works.
func WebsocketAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.Query("token"); token != "" {
			authenticate(c, token, jwtSecret)
			return
		}
		tokenString, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		authenticate(c, tokenString, jwtSecret)
	}
}

// StaffMiddleware rejects sessions without an admin or assistant role.
// Assumes AuthMiddleware runs first.
func StaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := SessionFrom(c)
		if !ok || !session.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Staff privileges required"})
			return
		}
		c.Next()
	}
}

// SessionFrom returns the session stored by the auth middleware.
func SessionFrom(c *gin.Context) (models.Session, bool) {
	v, exists := c.Get(ContextKeySession)
	if !exists {
		return models.Session{}, false
	}
	session, ok := v.(models.Session)
	return session, ok
}
