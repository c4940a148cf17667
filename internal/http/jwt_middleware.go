package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sentio/internal/service"
)

const (
	authClaimsKey = "auth_claims"
	userIDKey     = "user_id"
)

// JWTAuthMiddleware valida JWT access tokens y guarda claims en el contexto.
// Los clientes websocket pueden mandar el token en ?access_token=.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			c.Abort()
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// HeaderIdentityMiddleware identifica al usuario por X-User-ID (o ?user_id=) cuando no hay JWT configurado.
func HeaderIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
			c.Abort()
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// IdentityMiddleware elige JWT si hay secreto configurado.
func IdentityMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	if jwtSvc != nil {
		return JWTAuthMiddleware(jwtSvc)
	}
	return HeaderIdentityMiddleware()
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

// CurrentUserID devuelve el usuario que dejo el middleware de identidad.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" && strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return strings.TrimSpace(c.Query("access_token"))
}
