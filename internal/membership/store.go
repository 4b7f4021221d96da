// internal/membership/store.go
package membership

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
)

const msgUsernameTaken = "A user with that username already exists."

// Store persists members, their credentials and granted permissions.
type Store interface {
	CreateMember(ctx context.Context, m *Member, c *Credential) error
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	GetMemberByUsername(ctx context.Context, username string) (*Member, error)
	GetCredential(ctx context.Context, memberID uuid.UUID) (*Credential, error)
	AddPermission(ctx context.Context, memberID uuid.UUID, perm access.Permission) error
	RemovePermission(ctx context.Context, memberID uuid.UUID, perm access.Permission) error
}

// MemoryStore keeps members in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	members     map[uuid.UUID]Member
	credentials map[uuid.UUID]Credential
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:     make(map[uuid.UUID]Member),
		credentials: make(map[uuid.UUID]Credential),
	}
}

func (s *MemoryStore) CreateMember(_ context.Context, m *Member, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.Username == m.Username {
			return apperr.NewValidationError("username", msgUsernameTaken)
		}
	}
	m.CreatedAt = time.Now().UTC()
	stored := *m
	stored.Permissions = slices.Clone(m.Permissions)
	s.members[m.ID] = stored
	s.credentials[m.ID] = *c
	return nil
}

func (s *MemoryStore) get(id uuid.UUID) (*Member, error) {
	m, ok := s.members[id]
	if !ok {
		return nil, apperr.NotFound("member", id)
	}
	m.Permissions = slices.Clone(m.Permissions)
	if m.Permissions == nil {
		m.Permissions = []access.Permission{}
	}
	return &m, nil
}

func (s *MemoryStore) GetMember(_ context.Context, id uuid.UUID) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *MemoryStore) GetMemberByUsername(_ context.Context, username string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, m := range s.members {
		if m.Username == username {
			return s.get(id)
		}
	}
	return nil, apperr.NotFound("member", username)
}

func (s *MemoryStore) GetCredential(_ context.Context, memberID uuid.UUID) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[memberID]
	if !ok {
		return nil, apperr.NotFound("credential", memberID)
	}
	return &c, nil
}

func (s *MemoryStore) AddPermission(_ context.Context, memberID uuid.UUID, perm access.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return apperr.NotFound("member", memberID)
	}
	if !slices.Contains(m.Permissions, perm) {
		m.Permissions = append(slices.Clone(m.Permissions), perm)
		slices.Sort(m.Permissions)
		s.members[memberID] = m
	}
	return nil
}

func (s *MemoryStore) RemovePermission(_ context.Context, memberID uuid.UUID, perm access.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return apperr.NotFound("member", memberID)
	}
	m.Permissions = slices.DeleteFunc(slices.Clone(m.Permissions), func(p access.Permission) bool { return p == perm })
	s.members[memberID] = m
	return nil
}
