package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fitverse/class-booking/pkg/response"
)

const (
	// AuthorizationHeader is the header carrying the bearer token
	AuthorizationHeader = "Authorization"
	// MemberIDHeader is the fallback identity header used by internal
	// callers and load tooling
	MemberIDHeader = "X-Member-ID"
	// ContextKeyMemberID is the gin context key for the caller's member ID
	ContextKeyMemberID = "member_id"
)

// AuthConfig holds member authentication configuration
type AuthConfig struct {
	// Secret is the HMAC signing key for JWT validation
	Secret string
	// Issuer, when set, is enforced against the token's iss claim
	Issuer string
	// AllowHeaderFallback accepts X-Member-ID when no bearer token is
	// present (internal traffic, load tests)
	AllowHeaderFallback bool
}

// memberClaims are the claims this service reads from access tokens
type memberClaims struct {
	MemberID string `json:"member_id"`
	jwt.RegisteredClaims
}

// MemberAuth resolves the caller's member identity from a bearer token,
// falling back to the X-Member-ID header when configured
func MemberAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearerToken(c)

		if tokenString == "" {
			if cfg.AllowHeaderFallback {
				if memberID := c.GetHeader(MemberIDHeader); memberID != "" {
					c.Set(ContextKeyMemberID, memberID)
					c.Next()
					return
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "missing credentials"))
			return
		}

		claims := &memberClaims{}
		parserOpts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"HS256"}),
		}
		if cfg.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
		}

		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(cfg.Secret), nil
		}, parserOpts...)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "invalid token"))
			return
		}

		memberID := claims.MemberID
		if memberID == "" {
			memberID = claims.Subject
		}
		if memberID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "token has no member identity"))
			return
		}

		c.Set(ContextKeyMemberID, memberID)
		c.Next()
	}
}

// GetMemberID extracts the authenticated member ID from gin context
func GetMemberID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyMemberID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader(AuthorizationHeader)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
