// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
	"libracatalog/internal/eventlog"
	"libracatalog/internal/paging"
)

// service implements the Service interface.
type service struct {
	store     Store
	recorder  eventlog.Recorder
	logger    *slog.Logger
	matches   []SummaryMatch
	mutations metric.Int64Counter
}

// NewService creates a catalog service. A nil matches slice selects
// DefaultSummaryMatches.
func NewService(store Store, recorder eventlog.Recorder, logger *slog.Logger, matches []SummaryMatch) (Service, error) {
	if matches == nil {
		matches = DefaultSummaryMatches
	}
	for _, m := range matches {
		if err := checkCriteria(m.Entity, []Criteria{m.Criteria}); err != nil {
			return nil, fmt.Errorf("summary match %q: %w", m.Label, err)
		}
	}

	mutations, err := otel.Meter("libracatalog/catalog").Int64Counter("catalog.mutations",
		metric.WithDescription("Catalog rows created, updated or deleted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutation counter: %w", err)
	}

	return &service{
		store:     store,
		recorder:  recorder,
		logger:    logger,
		matches:   matches,
		mutations: mutations,
	}, nil
}

// record appends an audit entry after a successful change. The change is
// already committed, so failures are logged rather than returned.
func (s *service) record(ctx context.Context, actor *access.Principal, aggregateType string, id any, eventType string, payload any) {
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))

	entry, err := eventlog.NewEntry(aggregateType, id, eventType, payload)
	if err == nil {
		if actor != nil {
			entry = entry.WithActor(actor.UserID)
		}
		err = s.recorder.Append(ctx, entry)
	}
	if err != nil {
		s.logger.Error("failed to record audit entry",
			slog.String("event_type", eventType),
			slog.String("aggregate_id", fmt.Sprint(id)),
			slog.String("error", err.Error()),
		)
	}
}

func bookEvent(b *Book) BookChangedEvent {
	return BookChangedEvent{
		ID:         b.ID,
		Title:      b.Title,
		ISBN:       b.ISBN,
		AuthorID:   b.AuthorID,
		LanguageID: b.LanguageID,
		GenreIDs:   b.GenreIDs(),
	}
}

func authorEvent(a *Author) AuthorChangedEvent {
	return AuthorChangedEvent{ID: a.ID, FirstName: a.FirstName, LastName: a.LastName}
}

func instanceEvent(bi *BookInstance) InstanceChangedEvent {
	return InstanceChangedEvent{
		ID:         bi.ID,
		BookID:     bi.BookID,
		Status:     bi.Status,
		DueBack:    bi.DueBack,
		BorrowerID: bi.BorrowerID,
	}
}

func (s *service) ListBooks(ctx context.Context, page paging.Request) (*paging.PageOf[Book], error) {
	books, total, err := s.store.ListBooks(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	p := paging.NewPage(books, total, page)
	return &p, nil
}

// GetBook returns the book with its author, language and every copy.
func (s *service) GetBook(ctx context.Context, id int64) (*BookDetail, error) {
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &BookDetail{Book: *book, DisplayGenre: book.DisplayGenre()}
	if book.AuthorID != nil {
		author, err := s.store.GetAuthor(ctx, *book.AuthorID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("failed to load author of book %d: %w", id, err)
		}
		detail.Author = author
	}
	if book.LanguageID != nil {
		language, err := s.store.GetLanguage(ctx, *book.LanguageID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("failed to load language of book %d: %w", id, err)
		}
		detail.Language = language
	}

	filter := InstanceFilter{BookID: &book.ID}
	n, err := s.store.CountInstances(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances of book %d: %w", id, err)
	}
	instances, _, err := s.store.ListInstances(ctx, filter, paging.Request{Page: 1, Size: max(n, 1)})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances of book %d: %w", id, err)
	}
	detail.Instances = instances

	return detail, nil
}

func (s *service) CreateBook(ctx context.Context, actor *access.Principal, in BookInput) (*Book, error) {
	if err := access.Authorize(actor, access.OpCreateBook); err != nil {
		return nil, err
	}
	book, err := in.book()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateBook(ctx, &book, in.GenreIDs); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	s.record(ctx, actor, aggregateBook, book.ID, "BookCreated", bookEvent(&book))
	return &book, nil
}

func (s *service) UpdateBook(ctx context.Context, actor *access.Principal, id int64, in BookInput) (*Book, error) {
	if err := access.Authorize(actor, access.OpUpdateBook); err != nil {
		return nil, err
	}
	book, err := in.book()
	if err != nil {
		return nil, err
	}
	book.ID = id
	if err := s.store.UpdateBook(ctx, &book, in.GenreIDs); err != nil {
		return nil, fmt.Errorf("failed to update book %d: %w", id, err)
	}
	s.record(ctx, actor, aggregateBook, book.ID, "BookUpdated", bookEvent(&book))
	return &book, nil
}

func (s *service) DeleteBook(ctx context.Context, actor *access.Principal, id int64) error {
	if err := access.Authorize(actor, access.OpDeleteBook); err != nil {
		return err
	}
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return fmt.Errorf("failed to delete book %d: %w", id, err)
	}
	s.record(ctx, actor, aggregateBook, id, "BookDeleted", DeletedEvent{ID: fmt.Sprint(id)})
	return nil
}

func (s *service) ListAuthors(ctx context.Context, page paging.Request) (*paging.PageOf[Author], error) {
	authors, total, err := s.store.ListAuthors(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	p := paging.NewPage(authors, total, page)
	return &p, nil
}

func (s *service) GetAuthor(ctx context.Context, id int64) (*AuthorDetail, error) {
	author, err := s.store.GetAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	books, err := s.store.BooksByAuthor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list books of author %d: %w", id, err)
	}
	if books == nil {
		books = []Book{}
	}
	return &AuthorDetail{Author: *author, Books: books}, nil
}

func (s *service) CreateAuthor(ctx context.Context, actor *access.Principal, in AuthorInput) (*Author, error) {
	if err := access.Authorize(actor, access.OpCreateAuthor); err != nil {
		return nil, err
	}
	author, err := in.author()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAuthor(ctx, &author); err != nil {
		return nil, fmt.Errorf("failed to create author: %w", err)
	}
	s.record(ctx, actor, aggregateAuthor, author.ID, "AuthorCreated", authorEvent(&author))
	return &author, nil
}

func (s *service) UpdateAuthor(ctx context.Context, actor *access.Principal, id int64, in AuthorInput) (*Author, error) {
	if err := access.Authorize(actor, access.OpUpdateAuthor); err != nil {
		return nil, err
	}
	author, err := in.author()
	if err != nil {
		return nil, err
	}
	author.ID = id
	if err := s.store.UpdateAuthor(ctx, &author); err != nil {
		return nil, fmt.Errorf("failed to update author %d: %w", id, err)
	}
	s.record(ctx, actor, aggregateAuthor, id, "AuthorUpdated", authorEvent(&author))
	return &author, nil
}

func (s *service) DeleteAuthor(ctx context.Context, actor *access.Principal, id int64) error {
	if err := access.Authorize(actor, access.OpDeleteAuthor); err != nil {
		return err
	}
	if err := s.store.DeleteAuthor(ctx, id); err != nil {
		return fmt.Errorf("failed to delete author %d: %w", id, err)
	}
	s.record(ctx, actor, aggregateAuthor, id, "AuthorDeleted", DeletedEvent{ID: fmt.Sprint(id)})
	return nil
}

func (s *service) ListGenres(ctx context.Context, page paging.Request) (*paging.PageOf[Genre], error) {
	genres, total, err := s.store.ListGenres(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	p := paging.NewPage(genres, total, page)
	return &p, nil
}

func (s *service) CreateGenre(ctx context.Context, actor *access.Principal, in GenreInput) (*Genre, error) {
	if err := access.Authorize(actor, access.OpCreateGenre); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	genre := Genre{Name: in.Name}
	if err := s.store.CreateGenre(ctx, &genre); err != nil {
		return nil, fmt.Errorf("failed to create genre: %w", err)
	}
	s.record(ctx, actor, aggregateGenre, genre.ID, "GenreCreated", genre)
	return &genre, nil
}

func (s *service) DeleteGenre(ctx context.Context, actor *access.Principal, id int64) error {
	if err := access.Authorize(actor, access.OpDeleteGenre); err != nil {
		return err
	}
	if err := s.store.DeleteGenre(ctx, id); err != nil {
		return fmt.Errorf("failed to delete genre %d: %w", id, err)
	}
	s.record(ctx, actor, aggregateGenre, id, "GenreDeleted", DeletedEvent{ID: fmt.Sprint(id)})
	return nil
}

func (s *service) ListLanguages(ctx context.Context, page paging.Request) (*paging.PageOf[Language], error) {
	languages, total, err := s.store.ListLanguages(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}
	p := paging.NewPage(languages, total, page)
	return &p, nil
}

func (s *service) CreateLanguage(ctx context.Context, actor *access.Principal, in LanguageInput) (*Language, error) {
	if err := access.Authorize(actor, access.OpCreateLanguage); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	language := Language{Name: in.Name}
	if err := s.store.CreateLanguage(ctx, &language); err != nil {
		return nil, fmt.Errorf("failed to create language: %w", err)
	}
	s.record(ctx, actor, aggregateLanguage, language.ID, "LanguageCreated", language)
	return &language, nil
}

func (s *service) DeleteLanguage(ctx context.Context, actor *access.Principal, id int64) error {
	if err := access.Authorize(actor, access.OpDeleteLanguage); err != nil {
		return err
	}
	if err := s.store.DeleteLanguage(ctx, id); err != nil {
		return fmt.Errorf("failed to delete language %d: %w", id, err)
	}
	s.record(ctx, actor, aggregateLanguage, id, "LanguageDeleted", DeletedEvent{ID: fmt.Sprint(id)})
	return nil
}

func (s *service) GetInstance(ctx context.Context, id uuid.UUID) (*BookInstance, error) {
	return s.store.GetInstance(ctx, id)
}

func (s *service) CreateInstance(ctx context.Context, actor *access.Principal, in InstanceInput) (*BookInstance, error) {
	if err := access.Authorize(actor, access.OpCreateInstance); err != nil {
		return nil, err
	}
	bi, err := in.instance()
	if err != nil {
		return nil, err
	}
	bi.ID = uuid.New()
	if err := s.store.CreateInstance(ctx, &bi); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	s.record(ctx, actor, aggregateInstance, bi.ID, "InstanceCreated", instanceEvent(&bi))
	return &bi, nil
}

func (s *service) UpdateInstance(ctx context.Context, actor *access.Principal, id uuid.UUID, in InstanceInput) (*BookInstance, error) {
	if err := access.Authorize(actor, access.OpUpdateInstance); err != nil {
		return nil, err
	}
	bi, err := in.instance()
	if err != nil {
		return nil, err
	}
	bi.ID = id
	if err := s.store.UpdateInstance(ctx, &bi); err != nil {
		return nil, fmt.Errorf("failed to update instance %s: %w", id, err)
	}
	s.record(ctx, actor, aggregateInstance, id, "InstanceUpdated", instanceEvent(&bi))
	return &bi, nil
}

func (s *service) DeleteInstance(ctx context.Context, actor *access.Principal, id uuid.UUID) error {
	if err := access.Authorize(actor, access.OpDeleteInstance); err != nil {
		return err
	}
	if err := s.store.DeleteInstance(ctx, id); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	s.record(ctx, actor, aggregateInstance, id, "InstanceDeleted", DeletedEvent{ID: id.String()})
	return nil
}
