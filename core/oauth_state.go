package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultOAuthStateTTL = 15 * time.Minute

var (
	ErrStateMismatch = errors.New("core: oauth state mismatch")
	ErrStateExpired  = errors.New("core: oauth state expired")
)

// OAuthStateRecord is the anti-CSRF state bound to one authorization attempt.
// There is at most one pending attempt per credential key; the nonce is
// single use.
type OAuthStateRecord struct {
	Nonce       string
	OriginURL   string
	RedirectURI string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type OAuthStateStore interface {
	Save(ctx context.Context, key string, record OAuthStateRecord) error
	// Pending returns the stored attempt for the key, if any.
	Pending(ctx context.Context, key string) (OAuthStateRecord, bool, error)
	Delete(ctx context.Context, key string) error
}

// ValidateCallbackState enforces the callback's state check. A nil stored
// record does not fail validation (the caller logs a warning and proceeds: the
// exchange code is tamper-evident on its own); a mismatched or expired nonce
// is a hard failure.
func ValidateCallbackState(now time.Time, received string, stored *OAuthStateRecord) error {
	if stored == nil {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if !stored.ExpiresAt.IsZero() && now.After(stored.ExpiresAt) {
		return ErrStateExpired
	}
	if strings.TrimSpace(received) != strings.TrimSpace(stored.Nonce) {
		return ErrStateMismatch
	}
	return nil
}

// GenerateState produces a cryptographically random one-time nonce.
func GenerateState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

type MemoryOAuthStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]OAuthStateRecord
}

func NewMemoryOAuthStateStore(ttl time.Duration) *MemoryOAuthStateStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &MemoryOAuthStateStore{
		ttl:     ttl,
		entries: map[string]OAuthStateRecord{},
	}
}

func (s *MemoryOAuthStateStore) Save(_ context.Context, key string, record OAuthStateRecord) error {
	if s == nil {
		return fmt.Errorf("core: oauth state store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("core: credential key is required")
	}
	if strings.TrimSpace(record.Nonce) == "" {
		return fmt.Errorf("core: oauth state nonce is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key] = record
	s.mu.Unlock()

	return nil
}

func (s *MemoryOAuthStateStore) Pending(_ context.Context, key string) (OAuthStateRecord, bool, error) {
	if s == nil {
		return OAuthStateRecord{}, false, fmt.Errorf("core: oauth state store is not configured")
	}
	s.mu.Lock()
	record, ok := s.entries[strings.TrimSpace(key)]
	s.mu.Unlock()
	if !ok {
		return OAuthStateRecord{}, false, nil
	}
	return record, true, nil
}

func (s *MemoryOAuthStateStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return fmt.Errorf("core: oauth state store is not configured")
	}
	s.mu.Lock()
	delete(s.entries, strings.TrimSpace(key))
	s.mu.Unlock()
	return nil
}
