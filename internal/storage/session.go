package storage

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

const (
	sessionTTL  = 24 * time.Hour
	maxSessions = 100000
)

// Session is what the HTTP layer hands to the core: an already
// authenticated user id or an admin flag, never both.
type Session struct {
	UserID  string
	IsAdmin bool
}

type SessionStorage struct {
	cache *ristretto.Cache[string, *Session]
}

func NewSessionStorage() *SessionStorage {
	c, err := ristretto.NewCache(&ristretto.Config[string, *Session]{
		NumCounters: maxSessions,
		MaxCost:     maxSessions,
		BufferItems: 64,
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session storage")
	}

	return &SessionStorage{
		cache: c,
	}
}

// Create stores the session under a fresh opaque token and returns it.
func (s *SessionStorage) Create(sess *Session) string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)

	s.cache.SetWithTTL(token, sess, 1, sessionTTL)
	s.cache.Wait()
	return token
}

func (s *SessionStorage) Get(token string) (*Session, bool) {
	return s.cache.Get(token)
}

func (s *SessionStorage) Delete(token string) {
	s.cache.Del(token)
	s.cache.Wait()
}
