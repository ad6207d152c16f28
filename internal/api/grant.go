package api

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/artunion/celerychain/internal/platform/errors"
)

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer    string `env:"CELERYCHAIN_GRANT_ISSUER"`
	Audience  string `env:"CELERYCHAIN_GRANT_AUDIENCE"`
	PublicKey string `env:"CELERYCHAIN_GRANT_PUBLIC_KEY"`
}

// GrantConfig defines how dummy-mint grants are verified.
type GrantConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// GrantClaims captures validated dummy-mint grant claims.
type GrantClaims struct {
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	JWTID     string
	AuthorID  string
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	AuthorID string `json:"author_id"`
}

// LoadGrantConfigFromEnv reads grant verification configuration.
func LoadGrantConfigFromEnv(now func() time.Time) (GrantConfig, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return GrantConfig{}, fmt.Errorf("parse grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return GrantConfig{}, fmt.Errorf("CELERYCHAIN_GRANT_ISSUER is required")
	}
	if audience == "" {
		return GrantConfig{}, fmt.Errorf("CELERYCHAIN_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return GrantConfig{}, fmt.Errorf("CELERYCHAIN_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return GrantConfig{}, fmt.Errorf("decode grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return GrantConfig{}, fmt.Errorf("grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return GrantConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// ValidateGrant verifies a dummy-mint grant token and binds it to the author
// requesting the mint.
func ValidateGrant(grant, authorID string, cfg GrantConfig) (GrantClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "mint grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "mint grants are not configured")
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return GrantClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"mint grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"mint grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}

	if parsed.ID == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "mint grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "mint grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "mint grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "mint grant not active yet")
	}

	if strings.TrimSpace(parsed.AuthorID) == "" || parsed.AuthorID != authorID {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"mint grant author mismatch",
			map[string]string{"Field": "author_id"},
		)
	}

	return GrantClaims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
		JWTID:     parsed.ID,
		AuthorID:  parsed.AuthorID,
	}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeGrantInvalid, "mint grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeGrantInvalid, "mint grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeGrantInvalid, "mint grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
