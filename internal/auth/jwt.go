// Package auth issues and verifies the tokens that guard the API: short-lived
// HS256 access tokens and opaque refresh tokens stored hashed at rest.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry, or
// claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims carries the authenticated identity inside an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

// Tokens signs and parses access tokens with a shared HMAC secret.
type Tokens struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

// NewTokens builds a token manager.
func NewTokens(secret, issuer string, accessTTL time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, accessTTL: accessTTL}
}

// AccessTTL reports the configured access-token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.accessTTL }

// Issue signs an access token for the given user.
func (t *Tokens) Issue(userID, role string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
		UserID: userID,
		Role:   role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies a token string and returns its claims.
func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewRefreshToken returns an opaque refresh token and the SHA-256 hex digest
// that gets persisted. The raw value is shown to the client exactly once.
func NewRefreshToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken digests a raw refresh token for storage or lookup.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
