package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	ErrAuthFailure       = errors.New("invalid username or password")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrBadSignature      = errors.New("invalid signature")
)

// Context key for user ID
type contextKey string

const userIDKey contextKey = "userID"

// Signer signs cookie values with HMAC-SHA256.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns base64(value.signature).
func (s *Signer) Sign(value string) string {
	return base64.URLEncoding.EncodeToString([]byte(value + "." + s.mac(value)))
}

// Verify checks a value produced by Sign and returns the original value.
func (s *Signer) Verify(signed string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(signed)
	if err != nil {
		return "", ErrBadSignature
	}
	i := strings.LastIndexByte(string(decoded), '.')
	if i < 0 {
		return "", ErrBadSignature
	}
	value, signature := string(decoded[:i]), string(decoded[i+1:])
	if !hmac.Equal([]byte(s.mac(value)), []byte(signature)) {
		return "", ErrBadSignature
	}
	return value, nil
}

func (s *Signer) mac(data string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the user ID from the request context
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}
