package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MemberStore persists login accounts. FindMemberByEmail returns nil, nil
// when no account matches.
type MemberStore interface {
	FindMemberByEmail(ctx context.Context, email string) (*Member, error)
	GetMember(ctx context.Context, id string) (*Member, error)
	PutMember(ctx context.Context, m *Member) error
	ListMembers(ctx context.Context) ([]*Member, error)
}

type TokenSigner func(uid, name string, role Role, ttl time.Duration) (string, error)

type AuthService struct {
	store     MemberStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token  string `json:"token"`
	UserID string `json:"uid"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

func NewAuthService(store MemberStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  7 * 24 * time.Hour,
	}
}

// SetTokenTTL overrides the lifetime of issued tokens.
func (s *AuthService) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
}

// AddMember creates an account. It is used by operators, so it takes no
// caller; the HTTP layer guards it with ActionManageMembers.
func (s *AuthService) AddMember(ctx context.Context, email, name, password string, role Role) (*Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	if _, ok := ParseRole(string(role)); !ok {
		return nil, NewInvalidError("unknown role")
	}
	existing, err := s.store.FindMemberByEmail(ctx, email)
	if err != nil {
		return nil, storeError("find member", err)
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	m := &Member{
		ID:        s.idGen("u", 10),
		Email:     email,
		Name:      name,
		Role:      role,
		PassHash:  hash,
		CreatedAt: s.now(),
	}
	if err := s.store.PutMember(ctx, m); err != nil {
		return nil, storeError("save member", err)
	}
	return m, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	m, err := s.store.FindMemberByEmail(ctx, email)
	if err != nil {
		return nil, storeError("find member", err)
	}
	if m == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(m.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(m.ID, m.Name, m.Role, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: m.ID, Name: m.Name, Role: m.Role}, nil
}

func (s *AuthService) ListMembers(ctx context.Context, caller Caller) ([]*Member, error) {
	if err := authorize(caller, ActionManageMembers, Resource{}); err != nil {
		return nil, err
	}
	ms, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, storeError("list members", err)
	}
	return ms, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
