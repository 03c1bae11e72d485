package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	HeaderAPIKey     = "X-Api-Key"
	HeaderUserID     = "X-User-Id"
	ContextKeyAuthed = "api_key_ok"
	ContextKeyUserID = "user_id"
)

// APIKeyAuth 校验 X-Api-Key 与 bcrypt 哈希；hash 为空时不做校验
func APIKeyAuth(hash string) gin.HandlerFunc {
	if hash == "" {
		return func(c *gin.Context) { c.Next() }
	}
	// 已通过校验的 key
	var accepted sync.Map

	return func(c *gin.Context) {
		key := apiKey(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		if _, ok := accepted.Load(key); !ok {
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
				log.Warnf("middleware: rejected API key from %s", c.ClientIP())
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				c.Abort()
				return
			}
			accepted.Store(key, struct{}{})
		}

		c.Set(ContextKeyAuthed, true)
		c.Next()
	}
}

// apiKey 取 X-Api-Key，缺省时取 Authorization: Bearer
func apiKey(c *gin.Context) string {
	if key := c.GetHeader(HeaderAPIKey); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

// UserFromHeader 将 X-User-Id 写入上下文
func UserFromHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			c.Set(ContextKeyUserID, id)
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(ContextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func IsAuthed(c *gin.Context) bool {
	v, exists := c.Get(ContextKeyAuthed)
	if !exists {
		return false
	}
	ok, _ := v.(bool)
	return ok
}
