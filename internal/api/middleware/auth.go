package middleware

import (
    "errors"
    "strings"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/golang-jwt/jwt/v5"

    "github.com/d60-Lab/timeline-fanout/pkg/response"
)

// CtxViewerKey 认证通过后写入 gin.Context 的用户 id
const CtxViewerKey = "viewer_id"

var errMissingSubject = errors.New("token has no subject")

// Auth 校验 HS256 token；兼容 Authorization: Bearer xxx 与 websocket 的 ?i=xxx
func Auth(secret string) gin.HandlerFunc {
    key := []byte(secret)
    return func(c *gin.Context) {
        raw := bearer(c.GetHeader("Authorization"))
        if raw == "" {
            raw = strings.TrimSpace(c.Query("i"))
        }
        if raw == "" {
            response.Unauthorized(c, "credential required")
            return
        }
        userID, err := ParseToken(key, raw)
        if err != nil {
            response.Unauthorized(c, err.Error())
            return
        }
        c.Set(CtxViewerKey, userID)
        c.Next()
    }
}

func bearer(authz string) string {
    authz = strings.TrimSpace(authz)
    if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
        return strings.TrimSpace(authz[len("bearer "):])
    }
    return ""
}

// ParseToken 返回 token 的 subject
func ParseToken(key []byte, raw string) (string, error) {
    claims := &jwt.RegisteredClaims{}
    _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
        return key, nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil {
        return "", err
    }
    if claims.Subject == "" {
        return "", errMissingSubject
    }
    return claims.Subject, nil
}

// GenerateToken 签发 token，ttl <= 0 表示不过期
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
    claims := jwt.RegisteredClaims{
        Subject:  userID,
        IssuedAt: jwt.NewNumericDate(time.Now()),
    }
    if ttl > 0 {
        claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
    }
    return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ViewerID 取当前请求的用户 id
func ViewerID(c *gin.Context) string {
    return c.GetString(CtxViewerKey)
}
