package session

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live sessions on this server instance. Terminal sessions
// remove themselves once their outcome has been delivered; historical lookups
// go to the store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byOrder  map[string]uuid.UUID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		byOrder:  make(map[string]uuid.UUID),
	}
}

// Add registers a session. Returns false when an active session already
// holds the same merchant order id.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	orderID := s.Order().MerchantOrderID
	if _, exists := r.byOrder[orderID]; exists {
		return false
	}
	r.sessions[s.ID()] = s
	r.byOrder[orderID] = s.ID()
	return true
}

// Get returns the live session, if any
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetByOrder returns the live session holding the merchant order id
func (r *Registry) GetByOrder(merchantOrderID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[merchantOrderID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the registry
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		delete(r.byOrder, s.Order().MerchantOrderID)
		delete(r.sessions, id)
	}
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every live session, for shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[uuid.UUID]*Session)
	r.byOrder = make(map[string]uuid.UUID)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
