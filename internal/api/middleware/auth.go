package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/tutorlink/pkg/response"
)

const (
	callerIDKey   = "callerID"
	callerRoleKey = "callerRole"
)

// Claims 身份令牌：sub 为用户 ID，role 为 student / teacher
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity 解析可选的 Bearer 令牌。没有 Authorization 头视为匿名；
// 令牌无效时返回 401。
func Identity(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			response.Unauthorized(c, "invalid authorization header")
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || claims.Subject == "" {
			response.Unauthorized(c, "invalid token")
			return
		}

		c.Set(callerIDKey, claims.Subject)
		c.Set(callerRoleKey, claims.Role)
		c.Next()
	}
}

// CallerID 当前请求的用户 ID，匿名时为空
func CallerID(c *gin.Context) string { return c.GetString(callerIDKey) }

// CallerRole 当前请求的用户角色，匿名时为空
func CallerRole(c *gin.Context) string { return c.GetString(callerRoleKey) }

// IssueToken 签发身份令牌（测试与压测工具使用）
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
