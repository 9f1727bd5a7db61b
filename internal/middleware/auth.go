package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/flagkeeper/retention-api/internal/handler"
)

// Permissions understood by this service. Tokens are issued by the
// wider platform; we only verify and read them.
const (
	PermClearOwnFlags       = "clear own flags"
	PermClearAllFlags       = "clear all flags"
	PermAdministerRetention = "administer flag retention"
)

const (
	ContextUserID      = "user_id"
	ContextPermissions = "permissions"
)

type Claims struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// Authenticate verifies the bearer token and sets user info in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextPermissions, claims.Permissions)
		c.Next()
	}
}

// RequirePermission checks if the caller has the required permission
func (m *AuthMiddleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasPermission(c, permission) {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// HasPermission reports whether the authenticated caller carries the
// given permission.
func HasPermission(c *gin.Context, permission string) bool {
	perms, ok := c.Get(ContextPermissions)
	if !ok {
		return false
	}
	list, ok := perms.([]string)
	if !ok {
		return false
	}
	for _, p := range list {
		if p == permission {
			return true
		}
	}
	return false
}
