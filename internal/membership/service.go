// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"libracatalog/internal/access"
)

// Service defines the interface for the membership service. It is the
// identity provider for the catalog and circulation services.
type Service interface {
	RegisterMember(ctx context.Context, in RegisterInput) (*Member, error)
	Login(ctx context.Context, username, password string) (*Session, error)
	GetMember(ctx context.Context, actor *access.Principal, id uuid.UUID) (*Member, error)
	ResolveSession(ctx context.Context, token string) (*access.Principal, error)
	GrantPermission(ctx context.Context, actor *access.Principal, memberID uuid.UUID, perm access.Permission) (*Member, error)
	RevokePermission(ctx context.Context, actor *access.Principal, memberID uuid.UUID, perm access.Permission) (*Member, error)
	EnsureAdmin(ctx context.Context, username, password string) (*Member, error)
}
