// Package tokenstore persists the fleet API credential as three logical
// entries (access token, refresh token, expiry) on top of a key-value backend.
//
// Expiry is evaluated lazily: Get clears every entry and returns nil once the
// stored expiry is in the past. There is no background timer.
package tokenstore

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Storage keys. They are cleared together.
const (
	AccessTokenKey  = "avl_access_token"
	RefreshTokenKey = "avl_refresh_token"
	ExpiryKey       = "avl_token_expiry"
)

var allKeys = []string{AccessTokenKey, RefreshTokenKey, ExpiryKey}

// ErrEmptyAccessToken is returned by Set for a credential without an access token.
var ErrEmptyAccessToken = errors.New("access token is empty")

// KV is the persistence backend behind a Store.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Put writes all entries in one operation.
	Put(entries map[string]string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(keys ...string) error
}

// TokenStore is the contract the API client depends on.
type TokenStore interface {
	Get() *Credential
	RefreshToken() string
	Set(Credential) error
	Clear() error
	IsAuthenticated() bool
}

// Store implements TokenStore over a KV backend.
type Store struct {
	kv     KV
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

var _ TokenStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over kv.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemory returns a Store backed by an in-process map.
func NewMemory(opts ...Option) *Store {
	return New(NewMemoryKV(), opts...)
}

// Get returns the stored credential, or nil when there is none or it has expired.
// An expired credential is cleared as a side effect.
func (s *Store) Get() *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, ok, err := s.kv.Get(AccessTokenKey)
	if err != nil {
		s.logger.Warn("token store read failed", slog.String("key", AccessTokenKey), slog.Any("err", err))
		return nil
	}
	if !ok || access == "" {
		return nil
	}

	cred := &Credential{AccessToken: access, TokenType: "Bearer"}
	if refresh, ok, err := s.kv.Get(RefreshTokenKey); err == nil && ok {
		cred.RefreshToken = refresh
	}

	expiry, ok, err := s.kv.Get(ExpiryKey)
	if err == nil && ok && expiry != "" {
		ms, parseErr := strconv.ParseInt(expiry, 10, 64)
		if parseErr != nil {
			s.logger.Warn("ignoring malformed token expiry", slog.String("value", expiry))
		} else {
			cred.ExpiresAt = time.UnixMilli(ms)
		}
	}

	if cred.Expired(s.now()) {
		s.logger.Debug("stored access token expired, clearing")
		if err := s.kv.Delete(allKeys...); err != nil {
			s.logger.Warn("token store clear failed", slog.Any("err", err))
		}
		return nil
	}

	return cred
}

// RefreshToken returns the stored refresh token regardless of access-token expiry.
func (s *Store) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok, err := s.kv.Get(RefreshTokenKey)
	if err != nil || !ok {
		return ""
	}
	return v
}

// Set replaces the stored credential.
func (s *Store) Set(c Credential) error {
	if c.AccessToken == "" {
		return ErrEmptyAccessToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := map[string]string{
		AccessTokenKey:  c.AccessToken,
		RefreshTokenKey: c.RefreshToken,
	}
	if !c.ExpiresAt.IsZero() {
		entries[ExpiryKey] = strconv.FormatInt(c.ExpiresAt.UnixMilli(), 10)
	}
	if err := s.kv.Put(entries); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}

	// A credential without expiry must not inherit the previous one's.
	if c.ExpiresAt.IsZero() {
		if err := s.kv.Delete(ExpiryKey); err != nil {
			return fmt.Errorf("drop stale expiry: %w", err)
		}
	}
	return nil
}

// Clear removes all three entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(allKeys...); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether Get would return a credential.
func (s *Store) IsAuthenticated() bool {
	return s.Get() != nil
}
