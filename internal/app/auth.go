package app

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// subjectKey holds the authenticated caller in the gin context.
const subjectKey = "auth_subject"

// AuthConfig lists the credentials accepted on back-office routes.
type AuthConfig struct {
	StaticTokens []string
	JWTSecret    string
}

// AuthMiddleware accepts a bearer token that is either an HS256 JWT signed with JWTSecret or one
// of StaticTokens.
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		// JWT path
		if jwtSecret != "" {
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))
			if err == nil {
				if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
					c.Set(subjectKey, sub)
				}
				c.Next()
				return
			}
		}

		// static tokens
		for _, t := range cfg.StaticTokens {
			t = strings.TrimSpace(t)
			if t != "" && subtle.ConstantTimeCompare([]byte(tokenStr), []byte(t)) == 1 {
				c.Set(subjectKey, "static-token")
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "invalid token"})
	}
}
