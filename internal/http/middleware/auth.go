package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

const ctxKeySubject = "auth_subject"

// DiagnosticsClaims authorizes the operational endpoints.
type DiagnosticsClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

const DiagnosticsScope = "diagnostics"

type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

// NewAuthMiddleware returns nil when secret is empty; RequireDiagnostics on
// a nil middleware lets every request through.
func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), secret: []byte(secret)}
}

func (am *AuthMiddleware) RequireDiagnostics() gin.HandlerFunc {
	if am == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		claims, err := am.parse(tokenString)
		if err != nil {
			am.log.Warn("Rejected diagnostics token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid or expired token", "code": "unauthorized"},
			})
			return
		}
		if !hasScope(claims.Scope, DiagnosticsScope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "forbidden", "code": "forbidden"},
			})
			return
		}
		c.Set(ctxKeySubject, claims.Subject)
		c.Next()
	}
}

func (am *AuthMiddleware) parse(tokenString string) (*DiagnosticsClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &DiagnosticsClaims{}, func(token *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*DiagnosticsClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func hasScope(scopes, want string) bool {
	for _, s := range strings.Fields(scopes) {
		if s == want {
			return true
		}
	}
	return false
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
