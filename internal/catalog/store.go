// internal/catalog/store.go
package catalog

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/paging"
)

// Entity names a countable table for summary queries.
type Entity string

const (
	EntityBooks     Entity = "books"
	EntityAuthors   Entity = "authors"
	EntityGenres    Entity = "genres"
	EntityLanguages Entity = "languages"
	EntityInstances Entity = "instances"
)

// countableFields lists the text fields that Criteria may match on.
// "genre" on books matches the name of any of the book's genres.
var countableFields = map[Entity][]string{
	EntityBooks:     {"title", "isbn", "genre"},
	EntityAuthors:   {"first_name", "last_name"},
	EntityGenres:    {"name"},
	EntityLanguages: {"name"},
	EntityInstances: {"imprint"},
}

// Criteria restricts a count to rows whose Field contains the substring
// Contains, compared case-insensitively.
type Criteria struct {
	Field    string `yaml:"field"`
	Contains string `yaml:"contains"`
}

func checkCriteria(entity Entity, criteria []Criteria) error {
	fields, ok := countableFields[entity]
	if !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	for _, c := range criteria {
		if !slices.Contains(fields, c.Field) {
			return fmt.Errorf("field %q is not countable on %s", c.Field, entity)
		}
	}
	return nil
}

// InstanceFilter selects book instances. Zero fields match everything.
type InstanceFilter struct {
	Status     Status
	BorrowerID *uuid.UUID
	BookID     *int64
}

// GenreStore persists genres.
type GenreStore interface {
	CreateGenre(ctx context.Context, g *Genre) error
	GetGenre(ctx context.Context, id int64) (*Genre, error)
	ListGenres(ctx context.Context, page paging.Request) ([]Genre, int, error)
	DeleteGenre(ctx context.Context, id int64) error
}

// LanguageStore persists languages.
type LanguageStore interface {
	CreateLanguage(ctx context.Context, l *Language) error
	GetLanguage(ctx context.Context, id int64) (*Language, error)
	ListLanguages(ctx context.Context, page paging.Request) ([]Language, int, error)
	DeleteLanguage(ctx context.Context, id int64) error
}

// AuthorStore persists authors. Deleting an author clears the author of
// their books.
type AuthorStore interface {
	CreateAuthor(ctx context.Context, a *Author) error
	GetAuthor(ctx context.Context, id int64) (*Author, error)
	UpdateAuthor(ctx context.Context, a *Author) error
	DeleteAuthor(ctx context.Context, id int64) error
	ListAuthors(ctx context.Context, page paging.Request) ([]Author, int, error)
}

// BookStore persists books and their genre links. Deleting a book clears
// the book of its instances.
type BookStore interface {
	CreateBook(ctx context.Context, b *Book, genreIDs []int64) error
	GetBook(ctx context.Context, id int64) (*Book, error)
	UpdateBook(ctx context.Context, b *Book, genreIDs []int64) error
	DeleteBook(ctx context.Context, id int64) error
	ListBooks(ctx context.Context, page paging.Request) ([]Book, int, error)
	BooksByAuthor(ctx context.Context, authorID int64) ([]Book, error)
	BooksByID(ctx context.Context, ids []int64) (map[int64]Book, error)
}

// InstanceStore persists book instances. Lists are ordered by due_back
// ascending with instances lacking a due date last, then by id.
type InstanceStore interface {
	CreateInstance(ctx context.Context, bi *BookInstance) error
	GetInstance(ctx context.Context, id uuid.UUID) (*BookInstance, error)
	UpdateInstance(ctx context.Context, bi *BookInstance) error
	DeleteInstance(ctx context.Context, id uuid.UUID) error
	ListInstances(ctx context.Context, filter InstanceFilter, page paging.Request) ([]BookInstance, int, error)
	CountInstances(ctx context.Context, filter InstanceFilter) (int, error)
	SetDueBack(ctx context.Context, id uuid.UUID, dueBack time.Time) error
}

// Store is the full persistence surface of the catalog.
type Store interface {
	GenreStore
	LanguageStore
	AuthorStore
	BookStore
	InstanceStore

	// Count returns how many rows of entity satisfy every criterion.
	Count(ctx context.Context, entity Entity, criteria ...Criteria) (int, error)
}

// compareDueBack orders instances by due date, nil last, then by id.
func compareDueBack(a, b BookInstance) int {
	switch {
	case a.DueBack == nil && b.DueBack != nil:
		return 1
	case a.DueBack != nil && b.DueBack == nil:
		return -1
	case a.DueBack != nil && b.DueBack != nil:
		if c := a.DueBack.Compare(*b.DueBack); c != 0 {
			return c
		}
	}
	return compareUUID(a.ID, b.ID)
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
