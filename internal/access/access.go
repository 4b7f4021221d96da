// Package access declares which permission each catalog operation
// requires and evaluates those requirements against a Principal.
//
// Permission evaluation itself is delegated to the identity provider:
// a Principal arrives already carrying the set of permissions granted to
// the user. This package only answers "may this principal run this
// operation", returning apperr.ErrUnauthenticated when nobody is signed
// in and apperr.ErrPermissionDenied when the permission is missing.
package access

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"libracatalog/internal/apperr"
)

// Permission is a named capability granted to a user.
type Permission string

const (
	CanModifyBook        Permission = "catalog.can_modify_book"
	CanModifyAuthor      Permission = "catalog.can_modify_author"
	CanMarkReturned      Permission = "catalog.can_mark_returned"
	CanManagePermissions Permission = "membership.can_manage_permissions"
)

// AllPermissions lists every permission known to the system.
var AllPermissions = []Permission{
	CanModifyBook,
	CanModifyAuthor,
	CanMarkReturned,
	CanManagePermissions,
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return slices.Contains(AllPermissions, p)
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID      uuid.UUID    `json:"user_id"`
	Username    string       `json:"username"`
	Permissions []Permission `json:"permissions"`
}

// Has reports whether the principal holds perm. A nil principal holds
// nothing.
func (p *Principal) Has(perm Permission) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Permissions, perm)
}

// Operation names a use case that may be gated.
type Operation string

const (
	OpIndex        Operation = "index"
	OpListBooks    Operation = "book.list"
	OpBookDetail   Operation = "book.detail"
	OpCreateBook   Operation = "book.create"
	OpUpdateBook   Operation = "book.update"
	OpDeleteBook   Operation = "book.delete"
	OpListAuthors  Operation = "author.list"
	OpAuthorDetail Operation = "author.detail"
	OpCreateAuthor Operation = "author.create"
	OpUpdateAuthor Operation = "author.update"
	OpDeleteAuthor Operation = "author.delete"

	OpListGenres     Operation = "genre.list"
	OpCreateGenre    Operation = "genre.create"
	OpDeleteGenre    Operation = "genre.delete"
	OpListLanguages  Operation = "language.list"
	OpCreateLanguage Operation = "language.create"
	OpDeleteLanguage Operation = "language.delete"

	OpInstanceDetail Operation = "instance.detail"
	OpCreateInstance Operation = "instance.create"
	OpUpdateInstance Operation = "instance.update"
	OpDeleteInstance Operation = "instance.delete"

	OpMyLoans     Operation = "loan.list_mine"
	OpAllOnLoan   Operation = "loan.list_all"
	OpRenewalForm Operation = "loan.renewal_form"
	OpRenew       Operation = "loan.renew"

	OpManagePermissions Operation = "member.manage_permissions"
)

// Requirement is what an operation demands of its caller.
type Requirement struct {
	Login      bool
	Permission Permission
}

var requirements = map[Operation]Requirement{
	OpIndex:        {},
	OpListBooks:    {},
	OpBookDetail:   {},
	OpCreateBook:   {Login: true, Permission: CanModifyBook},
	OpUpdateBook:   {Login: true, Permission: CanModifyBook},
	OpDeleteBook:   {Login: true, Permission: CanModifyBook},
	OpListAuthors:  {},
	OpAuthorDetail: {},
	OpCreateAuthor: {Login: true, Permission: CanModifyAuthor},
	// Update and delete are gated like create. Older deployments only
	// checked on create; that gap is closed here.
	OpUpdateAuthor: {Login: true, Permission: CanModifyAuthor},
	OpDeleteAuthor: {Login: true, Permission: CanModifyAuthor},

	OpListGenres:     {},
	OpCreateGenre:    {Login: true, Permission: CanModifyBook},
	OpDeleteGenre:    {Login: true, Permission: CanModifyBook},
	OpListLanguages:  {},
	OpCreateLanguage: {Login: true, Permission: CanModifyBook},
	OpDeleteLanguage: {Login: true, Permission: CanModifyBook},

	OpInstanceDetail: {},
	OpCreateInstance: {Login: true, Permission: CanModifyBook},
	OpUpdateInstance: {Login: true, Permission: CanModifyBook},
	OpDeleteInstance: {Login: true, Permission: CanModifyBook},

	OpMyLoans:     {Login: true},
	OpAllOnLoan:   {Login: true, Permission: CanMarkReturned},
	OpRenewalForm: {Login: true, Permission: CanMarkReturned},
	OpRenew:       {Login: true, Permission: CanMarkReturned},

	OpManagePermissions: {Login: true, Permission: CanManagePermissions},
}

// RequirementFor returns the requirement declared for op. Unknown
// operations require login and a permission nobody holds, so they fail
// closed.
func RequirementFor(op Operation) Requirement {
	if req, ok := requirements[op]; ok {
		return req
	}
	return Requirement{Login: true, Permission: Permission("unknown:" + string(op))}
}

// Authorize checks that p may perform op.
func Authorize(p *Principal, op Operation) error {
	req := RequirementFor(op)
	if !req.Login && req.Permission == "" {
		return nil
	}
	if p == nil {
		return fmt.Errorf("%s: %w", op, apperr.ErrUnauthenticated)
	}
	if req.Permission != "" && !p.Has(req.Permission) {
		return fmt.Errorf("%s requires %s: %w", op, req.Permission, apperr.ErrPermissionDenied)
	}
	return nil
}
