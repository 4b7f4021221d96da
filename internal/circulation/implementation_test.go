package circulation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
	"libracatalog/internal/catalog"
	"libracatalog/internal/clock"
	"libracatalog/internal/eventlog"
	"libracatalog/internal/paging"
)

var (
	librarian = &access.Principal{
		UserID:      uuid.New(),
		Username:    "librarian",
		Permissions: []access.Permission{access.CanMarkReturned},
	}
	borrower = &access.Principal{UserID: uuid.New(), Username: "borrower"}
)

type fixture struct {
	svc   Service
	store *catalog.MemoryStore
	rec   *eventlog.Memory
	clock *clock.FakeClock
	book  catalog.Book
}

func newFixture(t require.TestingT) *fixture {
	store := catalog.NewMemoryStore()
	rec := eventlog.NewMemory()
	clk := clock.Fake(today.Add(10 * time.Hour))

	svc, err := NewService(store, rec, clk, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	book := catalog.Book{Title: "The Left Hand of Darkness", ISBN: "9780441478125"}
	require.NoError(t, store.CreateBook(context.Background(), &book, nil))

	return &fixture{svc: svc, store: store, rec: rec, clock: clk, book: book}
}

func (f *fixture) instance(t require.TestingT, status catalog.Status, borrowerID *uuid.UUID, dueBack *time.Time) catalog.BookInstance {
	bi := catalog.BookInstance{
		BookID:     &f.book.ID,
		Imprint:    "Ace, 1969",
		Status:     status,
		BorrowerID: borrowerID,
		DueBack:    dueBack,
	}
	require.NoError(t, f.store.CreateInstance(context.Background(), &bi))
	return bi
}

func day(offset int) *time.Time {
	d := clock.AddDays(today, offset)
	return &d
}

func TestMyLoansOnlyListsOwnOnLoanInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := uuid.New()

	late := f.instance(t, catalog.StatusOnLoan, &borrower.UserID, day(-3))
	soon := f.instance(t, catalog.StatusOnLoan, &borrower.UserID, day(5))
	f.instance(t, catalog.StatusOnLoan, &other, day(1))
	f.instance(t, catalog.StatusReserved, &borrower.UserID, day(2))

	page, err := f.svc.MyLoans(ctx, borrower, paging.Page(1))
	require.NoError(t, err)
	require.Len(t, page.Loans, 2)
	assert.Equal(t, late.ID, page.Loans[0].ID)
	assert.True(t, page.Loans[0].Overdue)
	assert.Equal(t, soon.ID, page.Loans[1].ID)
	assert.False(t, page.Loans[1].Overdue)
	assert.Equal(t, "The Left Hand of Darkness", page.Loans[0].BookTitle)
	assert.Equal(t, "On loan", page.Loans[0].StatusLabel)
	assert.Equal(t, 2, page.Metadata.TotalRecords)

	_, err = f.svc.MyLoans(ctx, nil, paging.Page(1))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestMaintenanceInstanceWithPastDueDateIsOverdueButNotListed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bi := f.instance(t, catalog.StatusMaintenance, &borrower.UserID, day(-1))
	assert.True(t, bi.IsOverdue(today))

	mine, err := f.svc.MyLoans(ctx, borrower, paging.Page(1))
	require.NoError(t, err)
	assert.Empty(t, mine.Loans)

	all, err := f.svc.AllOnLoan(ctx, librarian, paging.Page(1))
	require.NoError(t, err)
	assert.Empty(t, all.Loans)
}

func TestAllOnLoanRequiresPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AllOnLoan(ctx, nil, paging.Page(1))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = f.svc.AllOnLoan(ctx, borrower, paging.Page(1))
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
}

func TestAllOnLoanPaginatesInDueOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 12; i >= 0; i-- {
		f.instance(t, catalog.StatusOnLoan, &borrower.UserID, day(i))
	}
	f.instance(t, catalog.StatusOnLoan, &borrower.UserID, nil)
	f.instance(t, catalog.StatusAvailable, nil, nil)

	first, err := f.svc.AllOnLoan(ctx, librarian, paging.Page(1))
	require.NoError(t, err)
	require.Len(t, first.Loans, 10)
	assert.Equal(t, 14, first.Metadata.TotalRecords)
	assert.True(t, first.Metadata.IsPaginated)
	for i, l := range first.Loans {
		assert.True(t, day(i).Equal(*l.DueBack))
	}

	second, err := f.svc.AllOnLoan(ctx, librarian, paging.Page(2))
	require.NoError(t, err)
	require.Len(t, second.Loans, 4)
	assert.Nil(t, second.Loans[3].DueBack, "instances without a due date come last")

	third, err := f.svc.AllOnLoan(ctx, librarian, paging.Page(3))
	require.NoError(t, err)
	assert.Empty(t, third.Loans)
	assert.Equal(t, 14, third.Metadata.TotalRecords)
}

func TestRenewalForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bi := f.instance(t, catalog.StatusOnLoan, &borrower.UserID, day(-2))

	form, err := f.svc.RenewalForm(ctx, librarian, bi.ID)
	require.NoError(t, err)
	assert.Equal(t, *day(21), form.RenewalDate)
	assert.Equal(t, f.book.Title, form.BookTitle)

	_, err = f.svc.RenewalForm(ctx, borrower, bi.ID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = f.svc.RenewalForm(ctx, librarian, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRenewChecksExistenceThenPermissionThenDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bi := f.instance(t, catalog.StatusOnLoan, &borrower.UserID, day(-2))

	_, err := f.svc.Renew(ctx, nil, uuid.New(), *day(100))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Renew(ctx, nil, bi.ID, *day(100))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = f.svc.Renew(ctx, borrower, bi.ID, *day(7))
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied, "borrowers may not renew their own loans")

	_, err = f.svc.Renew(ctx, librarian, bi.ID, *day(100))
	assert.Equal(t, MsgRenewalTooFar, renewalMessage(t, err))

	got, err := f.store.GetInstance(ctx, bi.ID)
	require.NoError(t, err)
	assert.Equal(t, *day(-2), *got.DueBack)
	assert.Empty(t, f.rec.Entries())
}

func TestRenewChangesOnlyDueDate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()

		status := rapid.SampledFrom([]catalog.Status{
			catalog.StatusOnLoan, catalog.StatusMaintenance, catalog.StatusAvailable, catalog.StatusReserved,
		}).Draw(t, "status")
		var borrowerID *uuid.UUID
		if rapid.Bool().Draw(t, "borrowed") {
			borrowerID = &borrower.UserID
		}
		var dueBack *time.Time
		if rapid.Bool().Draw(t, "has_due_date") {
			dueBack = day(rapid.IntRange(-60, 60).Draw(t, "due_offset"))
		}
		before := f.instance(t, status, borrowerID, dueBack)

		offset := rapid.IntRange(-60, 60).Draw(t, "renew_offset")
		requested := *day(offset)
		loan, err := f.svc.Renew(ctx, librarian, before.ID, requested)

		after, gerr := f.store.GetInstance(ctx, before.ID)
		require.NoError(t, gerr)

		if offset < 0 || offset > RenewalWindowDays {
			require.Error(t, err)
			assert.Equal(t, before, *after)
			return
		}

		require.NoError(t, err)
		assert.Equal(t, requested, *after.DueBack)
		assert.Equal(t, requested, *loan.DueBack)
		assert.False(t, loan.Overdue)

		expected := before
		expected.DueBack = &requested
		assert.Equal(t, expected, *after)

		entries := f.rec.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "InstanceRenewed", entries[0].EventType)
		assert.Equal(t, librarian.UserID.String(), entries[0].Actor)
	})
}

func TestLoanListingsFilterAndOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		other := uuid.New()

		n := rapid.IntRange(0, 25).Draw(t, "instances")
		wantMine, wantAll := 0, 0
		for range n {
			status := rapid.SampledFrom([]catalog.Status{
				catalog.StatusOnLoan, catalog.StatusMaintenance, catalog.StatusAvailable, catalog.StatusReserved,
			}).Draw(t, "status")
			var borrowerID *uuid.UUID
			switch rapid.IntRange(0, 2).Draw(t, "borrower") {
			case 1:
				borrowerID = &borrower.UserID
			case 2:
				borrowerID = &other
			}
			var dueBack *time.Time
			if rapid.Bool().Draw(t, "has_due_date") {
				dueBack = day(rapid.IntRange(-5, 5).Draw(t, "due_offset"))
			}
			f.instance(t, status, borrowerID, dueBack)

			if status == catalog.StatusOnLoan {
				wantAll++
				if borrowerID == &borrower.UserID {
					wantMine++
				}
			}
		}

		collect := func(list func(paging.Request) (*LoanPage, error)) []Loan {
			var loans []Loan
			for p := 1; ; p++ {
				page, err := list(paging.Page(p))
				require.NoError(t, err)
				loans = append(loans, page.Loans...)
				if p >= page.Metadata.LastPage {
					return loans
				}
			}
		}
		inOrder := func(a, b Loan) bool {
			switch {
			case a.DueBack == nil:
				return b.DueBack == nil && a.ID.String() < b.ID.String()
			case b.DueBack == nil:
				return true
			case a.DueBack.Equal(*b.DueBack):
				return a.ID.String() < b.ID.String()
			default:
				return a.DueBack.Before(*b.DueBack)
			}
		}

		mine := collect(func(r paging.Request) (*LoanPage, error) { return f.svc.MyLoans(ctx, borrower, r) })
		all := collect(func(r paging.Request) (*LoanPage, error) { return f.svc.AllOnLoan(ctx, librarian, r) })

		assert.Len(t, mine, wantMine)
		assert.Len(t, all, wantAll)
		for i, loan := range mine {
			assert.Equal(t, catalog.StatusOnLoan, loan.Status)
			require.NotNil(t, loan.BorrowerID)
			assert.Equal(t, borrower.UserID, *loan.BorrowerID)
			if i > 0 {
				assert.True(t, inOrder(mine[i-1], loan), "my loans out of order at %d", i)
			}
		}
		for i, loan := range all {
			assert.Equal(t, catalog.StatusOnLoan, loan.Status)
			assert.Equal(t, loan.IsOverdue(today), loan.Overdue)
			if i > 0 {
				assert.True(t, inOrder(all[i-1], loan), "all loans out of order at %d", i)
			}
		}
	})
}

type failingTitles struct {
	*catalog.MemoryStore
}

func (failingTitles) BooksByID(context.Context, []int64) (map[int64]catalog.Book, error) {
	return nil, errors.New("connection reset")
}

func TestRenewLeavesDueDateWhenTitlesCannotLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bi := f.instance(t, catalog.StatusOnLoan, &borrower.UserID, day(-2))

	svc, err := NewService(failingTitles{f.store}, f.rec, f.clock, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	_, err = svc.Renew(ctx, librarian, bi.ID, *day(7))
	require.Error(t, err)

	got, err := f.store.GetInstance(ctx, bi.ID)
	require.NoError(t, err)
	assert.Equal(t, *day(-2), *got.DueBack)
	assert.Empty(t, f.rec.Entries())
}
