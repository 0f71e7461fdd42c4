// Package token 提供了 JWT 的签发与校验。
package token

import (
	"errors"
	"time"

	"piperag-go/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CustomClaims 是本服务使用的 JWT claims。
// 用户管理与令牌签发属于外部协作方，这里只消费 userId 与 tier 两个声明。
type CustomClaims struct {
	UserID uuid.UUID      `json:"userId"`
	Tier   model.UserTier `json:"tier"`
	jwt.RegisteredClaims
}

// JWTManager 负责 JWT 的签发和验证。
type JWTManager struct {
	secretKey string
}

// NewJWTManager 创建一个新的 JWTManager。
func NewJWTManager(secretKey string) *JWTManager {
	return &JWTManager{secretKey: secretKey}
}

// Generate 为指定用户签发一个 token（主要用于测试与本地联调）。
func (m *JWTManager) Generate(userID uuid.UUID, tier model.UserTier, ttl time.Duration) (string, error) {
	claims := CustomClaims{
		UserID: userID,
		Tier:   tier,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// VerifyToken 验证 token 并返回其中的 claims。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token missing userId claim")
	}
	if claims.Tier == "" {
		claims.Tier = model.TierFree
	}
	return claims, nil
}
