// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/catalog"
	"libracatalog/internal/paging"
)

// Loan is a borrowed instance as shown in loan listings.
type Loan struct {
	catalog.BookInstance
	BookTitle   string `json:"book_title"`
	StatusLabel string `json:"status_label"`
	Overdue     bool   `json:"overdue"`
}

// LoanPage is one page of a loan listing.
type LoanPage struct {
	Loans    []Loan          `json:"loans"`
	Metadata paging.Metadata `json:"metadata"`
}

// RenewalForm is what a librarian sees before renewing an instance.
// RenewalDate is only a suggestion and is not validated.
type RenewalForm struct {
	Instance    catalog.BookInstance
	BookTitle   string
	RenewalDate time.Time
}

// InstanceRenewedEvent is recorded when a due date is moved.
type InstanceRenewedEvent struct {
	InstanceID      uuid.UUID  `json:"instance_id"`
	PreviousDueBack *time.Time `json:"previous_due_back"`
	DueBack         time.Time  `json:"due_back"`
}
