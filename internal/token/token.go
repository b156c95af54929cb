// Issues and validates one-time tokens for mutating admin endpoints
package token

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long an issued token stays valid.
const DefaultTTL = time.Hour

// maxTokens caps the number of unconsumed tokens held in memory.
const maxTokens = 1000

// Service holds issued tokens until they are consumed or expire.
// Tokens are single use: Validate removes them.
type Service struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]time.Time // token -> expiry
}

// New creates a token service. ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		ttl:    ttl,
		tokens: make(map[string]time.Time),
	}
}

// Issue creates a fresh token. Expired tokens are pruned on the way.
func (s *Service) Issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for tok, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, tok)
		}
	}

	// Refuse to grow without bound if nobody consumes tokens
	if len(s.tokens) >= maxTokens {
		for tok := range s.tokens {
			delete(s.tokens, tok)
			break
		}
	}

	tok := uuid.NewString()
	s.tokens[tok] = now.Add(s.ttl)
	return tok
}

// Validate consumes a token. It returns true only for a known,
// unexpired token, and the token cannot be used again either way.
func (s *Service) Validate(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tokens[tok]
	if !ok {
		return false
	}
	delete(s.tokens, tok)
	return time.Now().Before(expiry)
}

// Pending returns the number of unconsumed tokens.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
