package catalog

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
	"libracatalog/internal/eventlog"
	"libracatalog/internal/paging"
)

var (
	librarian = &access.Principal{
		UserID:      uuid.New(),
		Username:    "librarian",
		Permissions: []access.Permission{access.CanModifyBook, access.CanModifyAuthor, access.CanMarkReturned},
	}
	reader = &access.Principal{UserID: uuid.New(), Username: "reader"}
)

func newTestService(t *testing.T) (Service, *MemoryStore, *eventlog.Memory) {
	t.Helper()
	store := NewMemoryStore()
	rec := eventlog.NewMemory()
	svc, err := NewService(store, rec, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)
	return svc, store, rec
}

func TestNewServiceRejectsBadSummaryMatch(t *testing.T) {
	_, err := NewService(NewMemoryStore(), eventlog.NewMemory(), slog.New(slog.DiscardHandler),
		[]SummaryMatch{{Label: "bad", Entity: EntityAuthors, Criteria: Criteria{Field: "title"}}})
	assert.Error(t, err)
}

func TestBookLifecycle(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	genre, err := svc.CreateGenre(ctx, librarian, GenreInput{Name: "Fantasy"})
	require.NoError(t, err)
	author, err := svc.CreateAuthor(ctx, librarian, AuthorInput{FirstName: "Ursula", LastName: "Le Guin"})
	require.NoError(t, err)
	lang, err := svc.CreateLanguage(ctx, librarian, LanguageInput{Name: "English"})
	require.NoError(t, err)

	book, err := svc.CreateBook(ctx, librarian, BookInput{
		Title:      "A Wizard of Earthsea",
		ISBN:       "9780547773742",
		AuthorID:   &author.ID,
		LanguageID: &lang.ID,
		GenreIDs:   []int64{genre.ID},
	})
	require.NoError(t, err)

	copyOf, err := svc.CreateInstance(ctx, librarian, InstanceInput{BookID: &book.ID, Imprint: "Parnassus, 1968"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, copyOf.ID)
	assert.Equal(t, StatusMaintenance, copyOf.Status)

	detail, err := svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fantasy", detail.DisplayGenre)
	require.NotNil(t, detail.Author)
	assert.Equal(t, "Ursula, Le Guin", detail.Author.String())
	require.NotNil(t, detail.Language)
	require.Len(t, detail.Instances, 1)
	assert.Equal(t, copyOf.ID, detail.Instances[0].ID)

	authorDetail, err := svc.GetAuthor(ctx, author.ID)
	require.NoError(t, err)
	require.Len(t, authorDetail.Books, 1)

	require.NoError(t, svc.DeleteAuthor(ctx, librarian, author.ID))
	detail, err = svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Author)
	assert.Nil(t, detail.AuthorID)

	types := make([]string, 0)
	for _, e := range rec.Entries() {
		types = append(types, e.EventType)
		assert.Equal(t, librarian.UserID.String(), e.Actor)
	}
	assert.Equal(t, []string{
		"GenreCreated", "AuthorCreated", "LanguageCreated", "BookCreated", "InstanceCreated", "AuthorDeleted",
	}, types)
}

func TestInstanceIDIsImmutable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	bi, err := svc.CreateInstance(ctx, librarian, InstanceInput{Imprint: "first"})
	require.NoError(t, err)

	updated, err := svc.UpdateInstance(ctx, librarian, bi.ID, InstanceInput{Imprint: "second", Status: "a"})
	require.NoError(t, err)
	assert.Equal(t, bi.ID, updated.ID)

	got, err := svc.GetInstance(ctx, bi.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Imprint)
	assert.Equal(t, StatusAvailable, got.Status)
}

func TestMutationsRequirePermission(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	a := Author{FirstName: "Mary", LastName: "Shelley"}
	require.NoError(t, store.CreateAuthor(ctx, &a))

	tests := []struct {
		name  string
		actor *access.Principal
		call  func(actor *access.Principal) error
		want  error
	}{
		{"anonymous book create", nil, func(p *access.Principal) error {
			_, err := svc.CreateBook(ctx, p, BookInput{})
			return err
		}, apperr.ErrUnauthenticated},
		{"reader book create", reader, func(p *access.Principal) error {
			_, err := svc.CreateBook(ctx, p, BookInput{})
			return err
		}, apperr.ErrPermissionDenied},
		{"reader author create", reader, func(p *access.Principal) error {
			_, err := svc.CreateAuthor(ctx, p, AuthorInput{})
			return err
		}, apperr.ErrPermissionDenied},
		// Update and delete of authors are gated the same way as create.
		{"reader author update", reader, func(p *access.Principal) error {
			_, err := svc.UpdateAuthor(ctx, p, a.ID, AuthorInput{FirstName: "M", LastName: "S"})
			return err
		}, apperr.ErrPermissionDenied},
		{"reader author delete", reader, func(p *access.Principal) error {
			return svc.DeleteAuthor(ctx, p, a.ID)
		}, apperr.ErrPermissionDenied},
		{"book editor without author permission", &access.Principal{
			UserID: uuid.New(), Permissions: []access.Permission{access.CanModifyBook},
		}, func(p *access.Principal) error {
			return svc.DeleteAuthor(ctx, p, a.ID)
		}, apperr.ErrPermissionDenied},
		{"reader genre create", reader, func(p *access.Principal) error {
			_, err := svc.CreateGenre(ctx, p, GenreInput{Name: "x"})
			return err
		}, apperr.ErrPermissionDenied},
		{"reader instance delete", reader, func(p *access.Principal) error {
			return svc.DeleteInstance(ctx, p, uuid.New())
		}, apperr.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(tt.actor), tt.want)
		})
	}

	_, err := store.GetAuthor(ctx, a.ID)
	assert.NoError(t, err, "author must survive denied calls")
	assert.Empty(t, rec.Entries())
}

func TestValidationErrorsSurface(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBook(ctx, librarian, BookInput{Title: "x", ISBN: "1", GenreIDs: []int64{99}})
	assert.Equal(t, msgInvalidChoice, fieldsOf(t, err)["genre"])

	_, err = svc.UpdateBook(ctx, librarian, 12345, BookInput{Title: "x", ISBN: "1", GenreIDs: []int64{1}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListsArePaginated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	g, err := svc.CreateGenre(ctx, librarian, GenreInput{Name: "Essay"})
	require.NoError(t, err)
	for _, title := range []string{"b", "a", "c"} {
		_, err := svc.CreateBook(ctx, librarian, BookInput{Title: title, ISBN: "1", GenreIDs: []int64{g.ID}})
		require.NoError(t, err)
	}

	page, err := svc.ListBooks(ctx, paging.Page(1))
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "a", page.Items[0].Title)
	assert.Equal(t, 3, page.Metadata.TotalRecords)
	assert.False(t, page.Metadata.IsPaginated)

	page, err = svc.ListBooks(ctx, paging.Page(7))
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 3, page.Metadata.TotalRecords)
}

type failingRecorder struct{}

func (failingRecorder) Append(context.Context, ...eventlog.Entry) error {
	return errors.New("events table is gone")
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(store, failingRecorder{}, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)

	g, err := svc.CreateGenre(context.Background(), librarian, GenreInput{Name: "Horror"})
	require.NoError(t, err)

	_, err = store.GetGenre(context.Background(), g.ID)
	assert.NoError(t, err)
}

func TestSummary(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	lit := mustGenre(t, store, "文學")
	other := mustGenre(t, store, "Other")
	a := mustAuthor(t, store, "Natsume", "Soseki")
	cat := mustBook(t, store, "吾輩は貓である", &a.ID, lit)
	mustBook(t, store, "Kokoro", &a.ID, lit, other)
	mustInstance(t, store, BookInstance{BookID: &cat.ID, Status: StatusAvailable})
	mustInstance(t, store, BookInstance{BookID: &cat.ID, Status: StatusOnLoan})

	sum, next, err := svc.Summary(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, Visits(5), next)
	assert.Equal(t, Visits(4), sum.NumVisits)
	assert.Equal(t, 2, sum.NumBooks)
	assert.Equal(t, 2, sum.NumInstances)
	assert.Equal(t, 1, sum.NumInstancesAvailable)
	assert.Equal(t, 1, sum.NumAuthors)
	assert.Equal(t, 2, sum.NumGenres)
	assert.Equal(t, 2, sum.Matches["books_literature"])
	assert.Equal(t, 1, sum.Matches["books_cat"])

	sum, next, err = svc.Summary(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, Visits(0), sum.NumVisits)
	assert.Equal(t, Visits(1), next)
}
