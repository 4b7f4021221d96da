// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/access"
	"libracatalog/internal/paging"
)

// Service lists loans and renews them.
type Service interface {
	// MyLoans lists the actor's own on-loan instances, earliest due first.
	MyLoans(ctx context.Context, actor *access.Principal, page paging.Request) (*LoanPage, error)
	// AllOnLoan lists every on-loan instance, earliest due first.
	AllOnLoan(ctx context.Context, actor *access.Principal, page paging.Request) (*LoanPage, error)
	RenewalForm(ctx context.Context, actor *access.Principal, instanceID uuid.UUID) (*RenewalForm, error)
	Renew(ctx context.Context, actor *access.Principal, instanceID uuid.UUID, dueBack time.Time) (*Loan, error)
}
