// internal/catalog/domain.go
package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Genre is a book category such as "Science Fiction".
type Genre struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Language is the language a book is written in.
type Language struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Author writes books. Listings order authors by first then last name.
type Author struct {
	ID          int64      `json:"id" db:"id"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth" db:"date_of_birth"`
	DateOfDeath *time.Time `json:"date_of_death" db:"date_of_death"`
}

func (a Author) String() string {
	return a.FirstName + ", " + a.LastName
}

// Book is a title in the catalog. AuthorID and LanguageID become nil when
// the referenced row is deleted.
type Book struct {
	ID         int64   `json:"id" db:"id"`
	Title      string  `json:"title" db:"title"`
	ISBN       string  `json:"isbn" db:"isbn"`
	AuthorID   *int64  `json:"author_id" db:"author_id"`
	LanguageID *int64  `json:"language_id" db:"language_id"`
	Genres     []Genre `json:"genres" db:"-"`
}

// DisplayGenre joins the names of the first three genres.
func (b Book) DisplayGenre() string {
	n := min(len(b.Genres), 3)
	names := make([]string, 0, n)
	for _, g := range b.Genres[:n] {
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}

// GenreIDs returns the ids of the book's genres.
func (b Book) GenreIDs() []int64 {
	ids := make([]int64, 0, len(b.Genres))
	for _, g := range b.Genres {
		ids = append(ids, g.ID)
	}
	return ids
}

// BookInstance is one physical copy of a Book that can be borrowed.
type BookInstance struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BookID     *int64     `json:"book_id" db:"book_id"`
	Imprint    string     `json:"imprint" db:"imprint"`
	DueBack    *time.Time `json:"due_back" db:"due_back"`
	Status     Status     `json:"status" db:"status"`
	BorrowerID *uuid.UUID `json:"borrower_id" db:"borrower_id"`
}

// BookDetail is a book together with the rows it references and its copies.
type BookDetail struct {
	Book
	DisplayGenre string         `json:"display_genre"`
	Author       *Author        `json:"author,omitempty"`
	Language     *Language      `json:"language,omitempty"`
	Instances    []BookInstance `json:"instances"`
}

// AuthorDetail is an author together with their books.
type AuthorDetail struct {
	Author
	Books []Book `json:"books"`
}

// Events recorded in the audit trail.

type BookChangedEvent struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	ISBN       string  `json:"isbn"`
	AuthorID   *int64  `json:"author_id"`
	LanguageID *int64  `json:"language_id"`
	GenreIDs   []int64 `json:"genre_ids"`
}

type AuthorChangedEvent struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type InstanceChangedEvent struct {
	ID         uuid.UUID  `json:"id"`
	BookID     *int64     `json:"book_id"`
	Status     Status     `json:"status"`
	DueBack    *time.Time `json:"due_back"`
	BorrowerID *uuid.UUID `json:"borrower_id"`
}

type DeletedEvent struct {
	ID string `json:"id"`
}

const (
	aggregateBook     = "book"
	aggregateAuthor   = "author"
	aggregateGenre    = "genre"
	aggregateLanguage = "language"
	aggregateInstance = "book_instance"
)
