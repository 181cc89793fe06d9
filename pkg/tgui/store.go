package tgui

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var ErrTokenNotFound = errors.New("tgui: token not found or expired")

// TokenStore keeps payloads server-side and hands out short tokens for
// callback data. Tokens never contain ':'.
type TokenStore struct {
	mu          sync.Mutex
	ttl         time.Duration
	max         int
	nextCleanup time.Time
	m           map[string]tokenEntry
	now         func() time.Time
}

type tokenEntry struct {
	b   []byte
	exp time.Time
}

// NewTokenStore keeps at most max entries for ttl each.
func NewTokenStore(ttl time.Duration, max int) *TokenStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if max <= 0 {
		max = 5000
	}
	return &TokenStore{ttl: ttl, max: max, m: map[string]tokenEntry{}, now: time.Now}
}

func (s *TokenStore) PutJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var buf [6]byte
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	for {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])
		if _, exists := s.m[tok]; exists {
			continue
		}
		s.m[tok] = tokenEntry{b: b, exp: now.Add(s.ttl)}
		s.enforceMaxLocked()
		return tok, nil
	}
}

func (s *TokenStore) GetJSON(tok string, out any) error {
	now := s.now()
	s.mu.Lock()
	e, ok := s.m[tok]
	if ok && now.After(e.exp) {
		delete(s.m, tok)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return ErrTokenNotFound
	}
	return json.Unmarshal(e.b, out)
}

func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// cleanupLocked sweeps expired tokens at most once a minute.
func (s *TokenStore) cleanupLocked(now time.Time) {
	if now.Before(s.nextCleanup) {
		return
	}
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
	s.nextCleanup = now.Add(time.Minute)
}

// enforceMaxLocked evicts the entries closest to expiry.
func (s *TokenStore) enforceMaxLocked() {
	for len(s.m) > s.max {
		var oldest string
		var exp time.Time
		for k, e := range s.m {
			if oldest == "" || e.exp.Before(exp) {
				oldest, exp = k, e.exp
			}
		}
		delete(s.m, oldest)
	}
}
