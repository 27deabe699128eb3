package auth

import (
	"fmt"
	"time"

	"github.com/Deepreo/zeit/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTClaims, JWT token'ında saklanan claim'leri temsil eder
type JWTClaims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// JWTTokenProvider, admin API için HS256 token üretir ve doğrular
type JWTTokenProvider struct {
	secretKey  []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

func NewJWTTokenProvider(cfg JWTConfig) (*JWTTokenProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(err)
	}
	return &JWTTokenProvider{
		secretKey:  []byte(cfg.SecretKey),
		expiration: cfg.Expiration,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}, nil
}

func (p *JWTTokenProvider) Expiration() time.Duration {
	return p.expiration
}

// Generate, subject için verilen permission'larla imzalı bir token oluşturur
func (p *JWTTokenProvider) Generate(subject string, permissions ...string) (string, error) {
	now := p.now()
	claims := JWTClaims{
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    p.issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secretKey)
	if err != nil {
		return "", errors.InfraError(err)
	}
	return signed, nil
}

// Validate, token'ı doğrular ve AuthContext'e çevirir
func (p *JWTTokenProvider) Validate(tokenString string) (*AuthContext, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		options = append(options, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secretKey, nil
	}, options...)
	if err != nil {
		return nil, errors.AuthError(fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	authCtx := &AuthContext{
		Subject:     claims.Subject,
		Permissions: claims.Permissions,
		TokenID:     claims.ID,
	}
	if claims.IssuedAt != nil {
		authCtx.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		authCtx.ExpiresAt = claims.ExpiresAt.Time
	}
	return authCtx, nil
}
