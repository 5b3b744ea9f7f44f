package util

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func init() {
	// iat is compared against the revocation watermark, whole seconds are too coarse
	jwt.TimePrecision = time.Millisecond
}

// Claims 自定义 JWT 负载
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken 生成用户的 JWT，可指定有效期
func GenerateToken(secret, issuer string, userID uint, now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 解析并验证 JWT，返回 Claims
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ErrTokenRevoked is returned when a token predates the user's watermark.
var ErrTokenRevoked = errors.New("token issued before invalidation watermark")

// CheckWatermark rejects tokens issued before invalidBefore. iat carries
// millisecond precision and is compared as is.
func CheckWatermark(claims *Claims, invalidBefore *time.Time) error {
	if invalidBefore == nil {
		return nil
	}
	if claims.IssuedAt == nil {
		return ErrTokenRevoked
	}
	if claims.IssuedAt.Time.Before(*invalidBefore) {
		return ErrTokenRevoked
	}
	return nil
}
