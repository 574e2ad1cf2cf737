package service

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("expired token")
	ErrInvalidOwnerID = errors.New("invalid owner id")
	ErrWeakSecret     = errors.New("auth secret must be at least 16 bytes")
)

// DefaultTokenTTL is how long a bearer token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

const maxOwnerIDLength = 64

func validateOwnerID(ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("must not be empty")
	}
	if len(ownerID) > maxOwnerIDLength {
		return fmt.Errorf("must be at most %d characters", maxOwnerIDLength)
	}
	for _, r := range ownerID {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' && r != '@' {
			return fmt.Errorf("must contain only letters, numbers, and . _ - @")
		}
	}
	return nil
}

// AuthService issues and checks bearer tokens that bind a request or a
// push connection to a stable owner id. Tokens have the form
// "timestamp:owner:signature" where owner is base64url encoded and the
// signature is a keyed BLAKE2b-256 MAC over the first two fields.
type AuthService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthService(secretKey string) (*AuthService, error) {
	if len(secretKey) < 16 {
		return nil, ErrWeakSecret
	}
	return &AuthService{
		secretKey: []byte(secretKey),
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}, nil
}

func (s *AuthService) sign(payload string) string {
	// New256 only fails for keys longer than 64 bytes; the key is hashed
	// down first in that case.
	key := s.secretKey
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	mac, err := blake2b.New256(key)
	if err != nil {
		panic(err)
	}
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *AuthService) GenerateToken(ownerID string) (string, error) {
	if err := validateOwnerID(ownerID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOwnerID, err)
	}

	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	owner := base64.RawURLEncoding.EncodeToString([]byte(ownerID))
	payload := timestamp + ":" + owner

	return payload + ":" + s.sign(payload), nil
}

// ValidateToken returns the owner id a token was issued for.
func (s *AuthService) ValidateToken(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	timestamp, owner, signature := parts[0], parts[1], parts[2]

	expected := s.sign(timestamp + ":" + owner)
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return "", ErrInvalidToken
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if s.now().After(time.Unix(ts, 0).Add(s.ttl)) {
		return "", ErrExpiredToken
	}

	ownerID, err := base64.RawURLEncoding.DecodeString(owner)
	if err != nil || validateOwnerID(string(ownerID)) != nil {
		return "", ErrInvalidToken
	}
	return string(ownerID), nil
}
