package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/models"
	"github.com/thereayou/abstrio/pkg/wallet"
)

// MemoryStore is a process-local user store with the same semantics as
// Database. It backs DATABASE_URL=memory and the handler tests.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*models.User // key: normalized address
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*models.User)}
}

func (m *MemoryStore) FindUserByAddress(ctx context.Context, address string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[wallet.NormalizeAddress(address)]
	if !ok {
		return nil, apperror.NotFound("user not found")
	}
	return clone(u), nil
}

func (m *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u := m.byEmail(email); u != nil {
		return clone(u), nil
	}
	return nil, apperror.NotFound("user not found")
}

func (m *MemoryStore) RegisterUser(ctx context.Context, address, token string) (*models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	address = wallet.NormalizeAddress(address)
	if u, ok := m.users[address]; ok {
		return clone(u), false, nil
	}

	now := time.Now()
	u := &models.User{ID: uuid.New(), Address: address, Token: token, CreatedAt: now, UpdatedAt: now}
	m.users[address] = u
	return clone(u), true, nil
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, address string, upd models.ProfileUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[wallet.NormalizeAddress(address)]
	if !ok {
		return nil, apperror.NotFound("user not found")
	}
	if upd.Email != "" {
		if holder := m.byEmail(upd.Email); holder != nil && holder != u {
			return nil, apperror.Conflict("email already exists")
		}
	}

	upd.Apply(u)
	u.UpdatedAt = time.Now()
	return clone(u), nil
}

func (m *MemoryStore) MarkEmailPending(ctx context.Context, address, email, verificationToken string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[wallet.NormalizeAddress(address)]
	if !ok {
		return nil, apperror.NotFound("user not found")
	}
	if u.IsVerified && u.Email != nil && *u.Email == email {
		return nil, apperror.Conflict("email already verified")
	}
	if holder := m.byEmail(email); holder != nil && holder != u {
		return nil, apperror.Conflict("email already exists")
	}

	u.Email = &email
	u.IsVerified = false
	u.VerificationToken = &verificationToken
	u.UpdatedAt = time.Now()
	return clone(u), nil
}

func (m *MemoryStore) MarkEmailVerified(ctx context.Context, email, verificationToken string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.byEmail(email)
	if u == nil || u.VerificationToken == nil || *u.VerificationToken != verificationToken {
		return nil, apperror.InvalidToken("invalid token")
	}

	u.IsVerified = true
	u.VerificationToken = nil
	u.UpdatedAt = time.Now()
	return clone(u), nil
}

// Len reports the number of stored users.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *MemoryStore) byEmail(email string) *models.User {
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return u
		}
	}
	return nil
}

func clone(u *models.User) *models.User {
	c := *u
	c.DisplayID = clonePtr(u.DisplayID)
	c.Image = clonePtr(u.Image)
	c.X = clonePtr(u.X)
	c.Email = clonePtr(u.Email)
	c.VerificationToken = clonePtr(u.VerificationToken)
	return &c
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
