package store

import (
	"context"
	"sync"
	"time"

	"hvgateway/internal/apierr"
	"hvgateway/internal/model"
)

// MemoryStore is an in-process implementation of NodeStore/UserStore/
// TicketStore, used by tests and local development without a Postgres
// instance.
type MemoryStore struct {
	mu      sync.RWMutex
	nodes   map[string]*model.Node
	users   map[string]*model.User
	tickets []*Ticket
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*model.Node),
		users: make(map[string]*model.User),
	}
}

func (s *MemoryStore) ListNodes(ctx context.Context) ([]*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, apierr.NotFoundf("node %s not found", id)
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) CreateNode(ctx context.Context, n *model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cp := *n
	s.nodes[n.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateNode(ctx context.Context, id string, patch NodePatch) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, apierr.NotFoundf("node %s not found", id)
	}
	if patch.Name != nil {
		n.Name = *patch.Name
	}
	if patch.APIURL != nil {
		n.APIURL = *patch.APIURL
	}
	if patch.APIKey != nil {
		n.APIKey = *patch.APIKey
	}
	if patch.APISecretPlain != nil {
		n.APISecret = *patch.APISecretPlain
	}
	if patch.InsecureTLS != nil {
		n.InsecureTLS = patch.InsecureTLS
	}
	if patch.ClientCertPEM != nil {
		n.ClientCertPEM = *patch.ClientCertPEM
	}
	if patch.ClientKeyPEM != nil {
		n.ClientKeyPEM = *patch.ClientKeyPEM
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return apierr.NotFoundf("node %s not found", id)
	}
	delete(s.nodes, id)
	return nil
}

func (s *MemoryStore) UpdateNodeStatus(ctx context.Context, id string, status model.NodeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return apierr.NotFoundf("node %s not found", id)
	}
	n.Status = status
	n.LastCheck = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apierr.NotFoundf("user %s not found", username)
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apierr.NotFoundf("user %s not found", id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return apierr.Conflictf("username %s already exists", u.Username)
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) AnyAdminExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Role == model.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateTicket(ctx context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	s.tickets = append(s.tickets, &cp)
	return nil
}

// ListTickets returns tickets newest-first, matching the Postgres ordering.
func (s *MemoryStore) ListTickets(ctx context.Context) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Ticket, 0, len(s.tickets))
	for i := len(s.tickets) - 1; i >= 0; i-- {
		cp := *s.tickets[i]
		out = append(out, &cp)
	}
	return out, nil
}
