package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type JWTConfig struct {
	SecretKey string
	Issuer    string
	TokenTTL  time.Duration
}

// Claims carries the session fields this service authorizes on.
type Claims struct {
	UserID     string `json:"user_id"`
	IsApproved bool   `json:"is_approved"`
	IsAdmin    bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	config JWTConfig
}

func NewJWTManager(config JWTConfig) *JWTManager {
	if config.TokenTTL <= 0 {
		config.TokenTTL = 15 * time.Minute
	}
	return &JWTManager{config: config}
}

// GenerateToken signs a session token. The session service normally issues these; tests and local tooling use it too.
func (m *JWTManager) GenerateToken(user UserContext) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     user.UserID,
		IsApproved: user.IsApproved,
		IsAdmin:    user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   user.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(m.config.SecretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Claims) User() *UserContext {
	return &UserContext{UserID: c.UserID, IsApproved: c.IsApproved, IsAdmin: c.IsAdmin}
}
