// internal/membership/postgres.go
package membership

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
)

const pqUniqueViolation = "23505"

// PostgresStore keeps members in the members, credentials and
// member_permissions tables.
type PostgresStore struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, tracer: otel.Tracer("libracatalog/membership")}
}

func (s *PostgresStore) CreateMember(ctx context.Context, m *Member, c *Credential) error {
	ctx, span := s.tracer.Start(ctx, "membership.store.create_member")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, &m.CreatedAt, `
		INSERT INTO members (id, username, email, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.Username, m.Email, m.FirstName, m.LastName)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return apperr.NewValidationError("username", msgUsernameTaken)
		}
		span.RecordError(err)
		return apperr.Storage("insert member", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (member_id, password_hash, salt)
		VALUES ($1, $2, $3)
	`, c.MemberID, c.PasswordHash, c.Salt)
	if err != nil {
		span.RecordError(err)
		return apperr.Storage("insert credential", err)
	}

	for _, perm := range m.Permissions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO member_permissions (member_id, permission) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, m.ID, string(perm))
		if err != nil {
			return apperr.Storage("insert permission", err)
		}
	}

	return apperr.Storage("commit", tx.Commit())
}

// load fetches one member by column, which must be "id" or "username".
func (s *PostgresStore) load(ctx context.Context, column string, arg any, key any) (*Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `
		SELECT id, username, email, first_name, last_name, created_at
		FROM members
		WHERE `+column+` = $1
	`, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("member", key)
	}
	if err != nil {
		return nil, apperr.Storage("get member", err)
	}

	var perms []string
	err = s.db.SelectContext(ctx, &perms, `
		SELECT permission FROM member_permissions WHERE member_id = $1 ORDER BY permission
	`, m.ID)
	if err != nil {
		return nil, apperr.Storage("get permissions", err)
	}
	m.Permissions = make([]access.Permission, 0, len(perms))
	for _, p := range perms {
		m.Permissions = append(m.Permissions, access.Permission(p))
	}
	return &m, nil
}

func (s *PostgresStore) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.store.get_member",
		trace.WithAttributes(attribute.String("member.id", id.String())))
	defer span.End()
	return s.load(ctx, "id", id, id)
}

func (s *PostgresStore) GetMemberByUsername(ctx context.Context, username string) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.store.get_member_by_username")
	defer span.End()
	return s.load(ctx, "username", username, username)
}

func (s *PostgresStore) GetCredential(ctx context.Context, memberID uuid.UUID) (*Credential, error) {
	var c Credential
	err := s.db.GetContext(ctx, &c, `
		SELECT member_id, password_hash, salt FROM credentials WHERE member_id = $1
	`, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("credential", memberID)
	}
	if err != nil {
		return nil, apperr.Storage("get credential", err)
	}
	return &c, nil
}

func (s *PostgresStore) AddPermission(ctx context.Context, memberID uuid.UUID, perm access.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO member_permissions (member_id, permission) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, memberID, string(perm))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return apperr.NotFound("member", memberID)
	}
	if err != nil {
		return apperr.Storage("add permission", err)
	}
	return nil
}

func (s *PostgresStore) RemovePermission(ctx context.Context, memberID uuid.UUID, perm access.Permission) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM member_permissions WHERE member_id = $1 AND permission = $2
	`, memberID, string(perm))
	if err != nil {
		return apperr.Storage("remove permission", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, memberID); err != nil {
			return apperr.Storage("check member", err)
		}
		if !exists {
			return apperr.NotFound("member", memberID)
		}
	}
	return nil
}
