package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
)

// AuthMiddleware resolves the caller's external user identity.
// Authentication happens upstream: when a bearer token is presented and a
// secret is configured, the "sub" claim becomes the user id; otherwise the
// anonymous client token stands in. Websocket clients cannot set headers,
// so the token is also accepted as an access_token query parameter.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()
		if secret == "" {
			return
		}

		raw := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		} else {
			raw = c.Query("access_token")
		}
		if raw == "" {
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("invalid bearer token")
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, ok := claims["sub"].(string); ok && sub != "" {
				c.Set("user_id", sub)
			}
		}
	}
}
