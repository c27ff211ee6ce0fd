package jwtutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the shortest HMAC secret the service accepts.
const MinSecretLen = 32

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWeakSecret   = errors.New("jwt secret missing or shorter than 32 bytes")
)

type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (c JWTConfig) Validate() error {
	if len(c.Secret) < MinSecretLen {
		return ErrWeakSecret
	}
	return nil
}

// LoadAndBuild returns a generator and verifier sharing the same secret.
func LoadAndBuild(cfg JWTConfig) (*Generator, *Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	gen := NewGenerator([]byte(cfg.Secret), cfg.Issuer, cfg.Audience, cfg.TTL)
	ver := NewVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience)
	return gen, ver, nil
}
