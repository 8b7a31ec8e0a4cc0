package client

import "sync"

// TokenStore persists the opaque resumption token handed out by the server.
// Implementations may back it with any key-value store; the client never
// inspects the token.
type TokenStore interface {
	Save(token []byte) error
	Load() ([]byte, bool)
}

// MemoryTokenStore keeps the token in process memory. It is the default
// store and the right choice when resumption across restarts is not needed.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token []byte
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Save(token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = append([]byte(nil), token...)
	return nil
}

func (s *MemoryTokenStore) Load() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.token) == 0 {
		return nil, false
	}
	return append([]byte(nil), s.token...), true
}
