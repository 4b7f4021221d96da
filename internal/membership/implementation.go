// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
	"libracatalog/internal/eventlog"
	"libracatalog/internal/validator"
)

const (
	aggregateMember = "member"
	minPasswordLen  = 8
)

// RegisterInput lists the fields accepted when registering.
type RegisterInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (in RegisterInput) validate() error {
	v := validator.New()
	v.Check(validator.NotBlank(in.Username), "username", "This field is required.")
	v.Check(validator.MaxChars(in.Username, 150), "username", "Ensure this value has at most 150 characters.")
	v.Check(len(in.Password) >= minPasswordLen, "password", "This password is too short. It must contain at least 8 characters.")
	v.Check(validator.MaxChars(in.Email, 254), "email", "Ensure this value has at most 254 characters.")
	v.Check(validator.MaxChars(in.FirstName, 150), "first_name", "Ensure this value has at most 150 characters.")
	v.Check(validator.MaxChars(in.LastName, 150), "last_name", "Ensure this value has at most 150 characters.")
	return v.Err()
}

// service implements the Service interface.
type service struct {
	store       Store
	recorder    eventlog.Recorder
	tokens      *Tokens
	logger      *slog.Logger
	rateLimiter *rate.Limiter
}

// NewService creates a new membership service instance. limiter bounds
// registrations and login attempts across all clients.
func NewService(store Store, recorder eventlog.Recorder, tokens *Tokens, logger *slog.Logger, limiter *rate.Limiter) Service {
	return &service{
		store:       store,
		recorder:    recorder,
		tokens:      tokens,
		logger:      logger,
		rateLimiter: limiter,
	}
}

func (s *service) record(ctx context.Context, actor *access.Principal, id uuid.UUID, eventType string, payload any) {
	entry, err := eventlog.NewEntry(aggregateMember, id, eventType, payload)
	if err == nil {
		if actor != nil {
			entry = entry.WithActor(actor.UserID)
		}
		err = s.recorder.Append(ctx, entry)
	}
	if err != nil {
		s.logger.Error("failed to record membership event",
			slog.String("event_type", eventType),
			slog.String("member_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *service) create(ctx context.Context, in RegisterInput, perms []access.Permission) (*Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	hash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	member := &Member{
		ID:          uuid.New(),
		Username:    in.Username,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Permissions: slices.Sorted(slices.Values(perms)),
	}
	credential := &Credential{MemberID: member.ID, PasswordHash: hash, Salt: salt}

	if err := s.store.CreateMember(ctx, member, credential); err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	s.record(ctx, nil, member.ID, "MemberRegistered", MemberRegisteredEvent{
		ID:       member.ID,
		Username: member.Username,
		Email:    member.Email,
	})
	return member, nil
}

// RegisterMember creates a member with no permissions.
func (s *service) RegisterMember(ctx context.Context, in RegisterInput) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.ErrRateLimited
	}
	return s.create(ctx, in, []access.Permission{})
}

// Login verifies a member's credentials and issues a session token.
func (s *service) Login(ctx context.Context, username, password string) (*Session, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.ErrRateLimited
	}

	member, err := s.store.GetMemberByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("authentication failed: %w", apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	credential, err := s.store.GetCredential(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, credential.Salt, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("authentication failed: invalid credentials: %w", apperr.ErrUnauthenticated)
	}

	token, expires, err := s.tokens.Issue(member)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, Member: member}, nil
}

// GetMember returns a member to themselves or to a permission manager.
func (s *service) GetMember(ctx context.Context, actor *access.Principal, id uuid.UUID) (*Member, error) {
	if actor == nil {
		return nil, fmt.Errorf("get member: %w", apperr.ErrUnauthenticated)
	}
	if actor.UserID != id {
		if err := access.Authorize(actor, access.OpManagePermissions); err != nil {
			return nil, err
		}
	}
	return s.store.GetMember(ctx, id)
}

// ResolveSession turns a token into the principal of a current member.
func (s *service) ResolveSession(ctx context.Context, token string) (*access.Principal, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	member, err := s.store.GetMember(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("session for removed member %s: %w", id, apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	return member.Principal(), nil
}

func checkPermission(perm access.Permission) error {
	if !perm.Valid() {
		return apperr.NewValidationError("permission", "Select a valid choice. That choice is not one of the available choices.")
	}
	return nil
}

func (s *service) GrantPermission(ctx context.Context, actor *access.Principal, memberID uuid.UUID, perm access.Permission) (*Member, error) {
	if err := access.Authorize(actor, access.OpManagePermissions); err != nil {
		return nil, err
	}
	if err := checkPermission(perm); err != nil {
		return nil, err
	}
	if err := s.store.AddPermission(ctx, memberID, perm); err != nil {
		return nil, fmt.Errorf("failed to grant %s: %w", perm, err)
	}
	s.record(ctx, actor, memberID, "PermissionGranted", PermissionChangedEvent{MemberID: memberID, Permission: perm})
	return s.store.GetMember(ctx, memberID)
}

func (s *service) RevokePermission(ctx context.Context, actor *access.Principal, memberID uuid.UUID, perm access.Permission) (*Member, error) {
	if err := access.Authorize(actor, access.OpManagePermissions); err != nil {
		return nil, err
	}
	if err := checkPermission(perm); err != nil {
		return nil, err
	}
	if err := s.store.RemovePermission(ctx, memberID, perm); err != nil {
		return nil, fmt.Errorf("failed to revoke %s: %w", perm, err)
	}
	s.record(ctx, actor, memberID, "PermissionRevoked", PermissionChangedEvent{MemberID: memberID, Permission: perm})
	return s.store.GetMember(ctx, memberID)
}

// EnsureAdmin makes sure username exists and holds every permission. An
// existing member keeps their password.
func (s *service) EnsureAdmin(ctx context.Context, username, password string) (*Member, error) {
	member, err := s.store.GetMemberByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.create(ctx, RegisterInput{Username: username, Password: password}, access.AllPermissions)
	}
	if err != nil {
		return nil, err
	}

	for _, perm := range access.AllPermissions {
		if !member.Principal().Has(perm) {
			if err := s.store.AddPermission(ctx, member.ID, perm); err != nil {
				return nil, fmt.Errorf("failed to grant %s: %w", perm, err)
			}
		}
	}
	return s.store.GetMember(ctx, member.ID)
}
