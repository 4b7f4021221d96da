// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"

	"libracatalog/internal/access"
	"libracatalog/internal/paging"
)

// Service is the catalog use-case surface. Mutating operations take the
// acting principal and fail with apperr.ErrUnauthenticated or
// apperr.ErrPermissionDenied before touching storage.
type Service interface {
	Summary(ctx context.Context, visits Visits) (*Summary, Visits, error)

	ListBooks(ctx context.Context, page paging.Request) (*paging.PageOf[Book], error)
	GetBook(ctx context.Context, id int64) (*BookDetail, error)
	CreateBook(ctx context.Context, actor *access.Principal, in BookInput) (*Book, error)
	UpdateBook(ctx context.Context, actor *access.Principal, id int64, in BookInput) (*Book, error)
	DeleteBook(ctx context.Context, actor *access.Principal, id int64) error

	ListAuthors(ctx context.Context, page paging.Request) (*paging.PageOf[Author], error)
	GetAuthor(ctx context.Context, id int64) (*AuthorDetail, error)
	CreateAuthor(ctx context.Context, actor *access.Principal, in AuthorInput) (*Author, error)
	UpdateAuthor(ctx context.Context, actor *access.Principal, id int64, in AuthorInput) (*Author, error)
	DeleteAuthor(ctx context.Context, actor *access.Principal, id int64) error

	ListGenres(ctx context.Context, page paging.Request) (*paging.PageOf[Genre], error)
	CreateGenre(ctx context.Context, actor *access.Principal, in GenreInput) (*Genre, error)
	DeleteGenre(ctx context.Context, actor *access.Principal, id int64) error

	ListLanguages(ctx context.Context, page paging.Request) (*paging.PageOf[Language], error)
	CreateLanguage(ctx context.Context, actor *access.Principal, in LanguageInput) (*Language, error)
	DeleteLanguage(ctx context.Context, actor *access.Principal, id int64) error

	GetInstance(ctx context.Context, id uuid.UUID) (*BookInstance, error)
	CreateInstance(ctx context.Context, actor *access.Principal, in InstanceInput) (*BookInstance, error)
	UpdateInstance(ctx context.Context, actor *access.Principal, id uuid.UUID, in InstanceInput) (*BookInstance, error)
	DeleteInstance(ctx context.Context, actor *access.Principal, id uuid.UUID) error
}
