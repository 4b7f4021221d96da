// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
	"libracatalog/internal/catalog"
	"libracatalog/internal/clock"
	"libracatalog/internal/eventlog"
	"libracatalog/internal/paging"
)

// Store is the part of the catalog storage that circulation reads and
// writes. catalog.Store satisfies it.
type Store interface {
	catalog.InstanceStore
	BooksByID(ctx context.Context, ids []int64) (map[int64]catalog.Book, error)
}

// service implements the Service interface.
type service struct {
	store    Store
	recorder eventlog.Recorder
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	renewals metric.Int64Counter
	denials  metric.Int64Counter
}

// NewService creates a new circulation service instance.
func NewService(store Store, recorder eventlog.Recorder, clk clock.Clock, logger *slog.Logger) (Service, error) {
	meter := otel.Meter("libracatalog/circulation")
	renewals, err := meter.Int64Counter("circulation.renewals",
		metric.WithDescription("Renewal attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal counter: %w", err)
	}
	denials, err := meter.Int64Counter("circulation.denials",
		metric.WithDescription("Requests refused for missing login or permission"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create denial counter: %w", err)
	}

	return &service{
		store:    store,
		recorder: recorder,
		clock:    clk,
		logger:   logger,
		tracer:   otel.Tracer("libracatalog/circulation"),
		renewals: renewals,
		denials:  denials,
	}, nil
}

func (s *service) authorize(ctx context.Context, actor *access.Principal, op access.Operation) error {
	err := access.Authorize(actor, op)
	if err != nil {
		s.denials.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", string(op))))
	}
	return err
}

func (s *service) MyLoans(ctx context.Context, actor *access.Principal, page paging.Request) (*LoanPage, error) {
	if err := s.authorize(ctx, actor, access.OpMyLoans); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "circulation.my_loans",
		trace.WithAttributes(attribute.String("user.id", actor.UserID.String())))
	defer span.End()

	filter := catalog.InstanceFilter{Status: catalog.StatusOnLoan, BorrowerID: &actor.UserID}
	return s.listLoans(ctx, filter, page)
}

func (s *service) AllOnLoan(ctx context.Context, actor *access.Principal, page paging.Request) (*LoanPage, error) {
	if err := s.authorize(ctx, actor, access.OpAllOnLoan); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "circulation.all_on_loan")
	defer span.End()

	return s.listLoans(ctx, catalog.InstanceFilter{Status: catalog.StatusOnLoan}, page)
}

func (s *service) listLoans(ctx context.Context, filter catalog.InstanceFilter, page paging.Request) (*LoanPage, error) {
	instances, total, err := s.store.ListInstances(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}

	titles, err := s.titles(ctx, instances...)
	if err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	loans := make([]Loan, 0, len(instances))
	for _, bi := range instances {
		loans = append(loans, s.loan(bi, titles, today))
	}
	return &LoanPage{Loans: loans, Metadata: paging.NewMetadata(total, page)}, nil
}

func (s *service) titles(ctx context.Context, instances ...catalog.BookInstance) (map[int64]catalog.Book, error) {
	ids := make([]int64, 0, len(instances))
	for _, bi := range instances {
		if bi.BookID != nil {
			ids = append(ids, *bi.BookID)
		}
	}
	books, err := s.store.BooksByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load books: %w", err)
	}
	return books, nil
}

func (s *service) loan(bi catalog.BookInstance, books map[int64]catalog.Book, today time.Time) Loan {
	l := Loan{
		BookInstance: bi,
		StatusLabel:  bi.Status.Label(),
		Overdue:      bi.IsOverdue(today),
	}
	if bi.BookID != nil {
		l.BookTitle = books[*bi.BookID].Title
	}
	return l
}

// instance loads the instance first so that a missing id is reported as
// not found regardless of who asks.
func (s *service) instance(ctx context.Context, actor *access.Principal, op access.Operation, id uuid.UUID) (*catalog.BookInstance, error) {
	bi, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, op); err != nil {
		return nil, err
	}
	return bi, nil
}

func (s *service) RenewalForm(ctx context.Context, actor *access.Principal, instanceID uuid.UUID) (*RenewalForm, error) {
	bi, err := s.instance(ctx, actor, access.OpRenewalForm, instanceID)
	if err != nil {
		return nil, err
	}
	titles, err := s.titles(ctx, *bi)
	if err != nil {
		return nil, err
	}

	form := &RenewalForm{
		Instance:    *bi,
		RenewalDate: DefaultRenewalDate(clock.Today(s.clock)),
	}
	if bi.BookID != nil {
		form.BookTitle = titles[*bi.BookID].Title
	}
	return form, nil
}

// Renew moves the due date of an instance. Only due_back changes; status
// and borrower are left as they are.
func (s *service) Renew(ctx context.Context, actor *access.Principal, instanceID uuid.UUID, dueBack time.Time) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.renew",
		trace.WithAttributes(attribute.String("instance.id", instanceID.String())))
	defer span.End()

	bi, err := s.instance(ctx, actor, access.OpRenew, instanceID)
	if err != nil {
		s.countRenewal(ctx, err)
		return nil, err
	}

	today := clock.Today(s.clock)
	dueBack = clock.Date(dueBack)
	if err := ValidateRenewalDate(dueBack, today); err != nil {
		s.countRenewal(ctx, err)
		return nil, err
	}

	titles, err := s.titles(ctx, *bi)
	if err != nil {
		span.RecordError(err)
		s.countRenewal(ctx, err)
		return nil, err
	}

	if err := s.store.SetDueBack(ctx, instanceID, dueBack); err != nil {
		span.RecordError(err)
		s.countRenewal(ctx, err)
		return nil, fmt.Errorf("failed to renew instance %s: %w", instanceID, err)
	}
	s.countRenewal(ctx, nil)

	previous := bi.DueBack
	bi.DueBack = &dueBack
	s.record(ctx, actor, InstanceRenewedEvent{
		InstanceID:      instanceID,
		PreviousDueBack: previous,
		DueBack:         dueBack,
	})

	l := s.loan(*bi, titles, today)
	return &l, nil
}

func (s *service) countRenewal(ctx context.Context, err error) {
	outcome := "renewed"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, apperr.ErrUnauthenticated), errors.Is(err, apperr.ErrPermissionDenied):
		outcome = "denied"
	case apperr.IsValidation(err):
		outcome = "invalid_date"
	default:
		outcome = "error"
	}
	s.renewals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// record appends the renewal to the audit trail. The due date is already
// stored, so a failure here is logged and not returned.
func (s *service) record(ctx context.Context, actor *access.Principal, event InstanceRenewedEvent) {
	entry, err := eventlog.NewEntry("book_instance", event.InstanceID, "InstanceRenewed", event)
	if err == nil {
		err = s.recorder.Append(ctx, entry.WithActor(actor.UserID))
	}
	if err != nil {
		s.logger.Error("failed to record renewal",
			slog.String("instance_id", event.InstanceID.String()),
			slog.String("error", err.Error()),
		)
	}
}
