package auth

import (
	"errors"
	"time"
)

// Config, admin API'nin auth konfigürasyonu
type Config struct {
	Enabled bool      `mapstructure:"enabled" json:"enabled"`
	JWT     JWTConfig `mapstructure:"jwt" json:"jwt"`
}

// JWTConfig, JWT konfigürasyon yapısı
type JWTConfig struct {
	SecretKey  string        `mapstructure:"secret_key" json:"secret_key"`
	Expiration time.Duration `mapstructure:"expiration" json:"expiration"`
	Issuer     string        `mapstructure:"issuer" json:"issuer"`
}

// DefaultJWTConfig, varsayılan JWT konfigürasyonu. SecretKey bilerek boş bırakılır.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Expiration: 15 * time.Minute,
		Issuer:     "zeit",
	}
}

// Validate, JWT konfigürasyonunu doğrular
func (c JWTConfig) Validate() error {
	if c.SecretKey == "" {
		return errors.New("JWT secret key cannot be empty")
	}
	if len(c.SecretKey) < 32 {
		return errors.New("JWT secret key must be at least 32 characters")
	}
	if c.Expiration <= 0 {
		return errors.New("token expiration must be positive")
	}
	return nil
}

// Validate, auth konfigürasyonunu doğrular
func (c Config) Validate() error {
	if !c.Enabled {
		return nil // Auth disabled ise validation yapmaya gerek yok
	}
	return c.JWT.Validate()
}
