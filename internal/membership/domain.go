// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/access"
)

// Member is a library user who can sign in and borrow books.
type Member struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	Username    string              `json:"username" db:"username"`
	Email       string              `json:"email" db:"email"`
	FirstName   string              `json:"first_name" db:"first_name"`
	LastName    string              `json:"last_name" db:"last_name"`
	Permissions []access.Permission `json:"permissions" db:"-"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

// Principal returns the identity other services act on.
func (m *Member) Principal() *access.Principal {
	perms := make([]access.Permission, len(m.Permissions))
	copy(perms, m.Permissions)
	return &access.Principal{UserID: m.ID, Username: m.Username, Permissions: perms}
}

// Credential represents a member's login credentials.
type Credential struct {
	MemberID     uuid.UUID `db:"member_id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}

// Session is returned by a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Member    *Member   `json:"member"`
}

// MemberRegisteredEvent is recorded when a new member registers.
type MemberRegisteredEvent struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// PermissionChangedEvent is recorded when a permission is granted or
// revoked.
type PermissionChangedEvent struct {
	MemberID   uuid.UUID         `json:"member_id"`
	Permission access.Permission `json:"permission"`
}
