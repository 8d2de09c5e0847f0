package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/lexbridge-backend/internal/domain/user"
	"github.com/yungbote/lexbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

// OperatorClaims are carried by ops bearer tokens.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// OpsAuth guards /admin routes with HS256 bearer tokens. With no secret
// configured every request passes; the router logs that at startup.
type OpsAuth struct {
	log    *logger.Logger
	secret []byte
}

func NewOpsAuth(log *logger.Logger, secret string) *OpsAuth {
	if log == nil {
		log = logger.Nop()
	}
	return &OpsAuth{log: log.With("Middleware", "OpsAuth"), secret: []byte(strings.TrimSpace(secret))}
}

func (a *OpsAuth) Enabled() bool { return a != nil && len(a.secret) > 0 }

func (a *OpsAuth) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		claims, err := a.parse(tokenString)
		if err != nil {
			a.log.Debug("Rejected ops token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		if claims.Role != user.RoleAdmin && claims.Role != user.RoleService {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "forbidden", "code": "forbidden"},
			})
			return
		}
		ctx := ctxutil.WithOperator(c.Request.Context(), &ctxutil.Operator{Subject: claims.Subject, Role: claims.Role})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (a *OpsAuth) parse(tokenString string) (*OperatorClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid or expired token")
	}
	return claims, nil
}

// IssueToken signs an operator token. lexctl and tests use it.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
