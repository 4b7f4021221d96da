// internal/catalog/forms.go
package catalog

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/validator"
)

const (
	msgRequired      = "This field is required."
	msgInvalidDate   = "Enter a valid date."
	msgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	msgDuplicate     = "Duplicate values are not allowed."
	dateLayout       = "2006-01-02"
)

func msgMaxChars(n int) string {
	return "Ensure this value has at most " + strconv.Itoa(n) + " characters."
}

// GenreInput lists the fields accepted when creating a genre.
type GenreInput struct {
	Name string `json:"name"`
}

func (in GenreInput) validate() error {
	v := validator.New()
	v.Check(validator.NotBlank(in.Name), "name", msgRequired)
	v.Check(validator.MaxChars(in.Name, 200), "name", msgMaxChars(200))
	return v.Err()
}

// LanguageInput lists the fields accepted when creating a language.
type LanguageInput struct {
	Name string `json:"name"`
}

func (in LanguageInput) validate() error {
	v := validator.New()
	v.Check(validator.NotBlank(in.Name), "name", msgRequired)
	v.Check(validator.MaxChars(in.Name, 100), "name", msgMaxChars(100))
	return v.Err()
}

// AuthorInput lists the fields accepted when creating or updating an author.
// Dates use the YYYY-MM-DD form.
type AuthorInput struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth *string `json:"date_of_birth"`
	DateOfDeath *string `json:"date_of_death"`
}

func (in AuthorInput) author() (Author, error) {
	v := validator.New()
	v.Check(validator.NotBlank(in.FirstName), "first_name", msgRequired)
	v.Check(validator.MaxChars(in.FirstName, 100), "first_name", msgMaxChars(100))
	v.Check(validator.NotBlank(in.LastName), "last_name", msgRequired)
	v.Check(validator.MaxChars(in.LastName, 100), "last_name", msgMaxChars(100))

	a := Author{FirstName: in.FirstName, LastName: in.LastName}
	a.DateOfBirth = optionalDate(v, "date_of_birth", in.DateOfBirth)
	a.DateOfDeath = optionalDate(v, "date_of_death", in.DateOfDeath)

	return a, v.Err()
}

// BookInput lists the fields accepted when creating or updating a book.
type BookInput struct {
	Title      string  `json:"title"`
	ISBN       string  `json:"isbn"`
	AuthorID   *int64  `json:"author"`
	LanguageID *int64  `json:"language"`
	GenreIDs   []int64 `json:"genre"`
}

func (in BookInput) book() (Book, error) {
	v := validator.New()
	v.Check(validator.NotBlank(in.Title), "title", msgRequired)
	v.Check(validator.MaxChars(in.Title, 200), "title", msgMaxChars(200))
	v.Check(validator.NotBlank(in.ISBN), "isbn", msgRequired)
	v.Check(validator.MaxChars(in.ISBN, 13), "isbn", msgMaxChars(13))
	v.Check(len(in.GenreIDs) > 0, "genre", msgRequired)
	v.Check(validator.Unique(in.GenreIDs), "genre", msgDuplicate)

	return Book{
		Title:      in.Title,
		ISBN:       in.ISBN,
		AuthorID:   in.AuthorID,
		LanguageID: in.LanguageID,
	}, v.Err()
}

// InstanceInput lists the fields accepted when creating or updating a book
// instance. The id is never accepted: it is generated once at creation.
type InstanceInput struct {
	BookID     *int64     `json:"book"`
	Imprint    string     `json:"imprint"`
	DueBack    *string    `json:"due_back"`
	Status     string     `json:"status"`
	BorrowerID *uuid.UUID `json:"borrower"`
}

func (in InstanceInput) instance() (BookInstance, error) {
	v := validator.New()
	v.Check(validator.NotBlank(in.Imprint), "imprint", msgRequired)
	v.Check(validator.MaxChars(in.Imprint, 200), "imprint", msgMaxChars(200))

	bi := BookInstance{
		BookID:     in.BookID,
		Imprint:    in.Imprint,
		Status:     DefaultStatus,
		BorrowerID: in.BorrowerID,
	}
	bi.DueBack = optionalDate(v, "due_back", in.DueBack)

	if in.Status != "" {
		status, err := ParseStatus(in.Status)
		v.Check(err == nil, "status", msgInvalidChoice)
		bi.Status = status
	}

	return bi, v.Err()
}

func optionalDate(v *validator.Validator, field string, raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	d, err := ParseDate(*raw)
	if err != nil {
		v.AddError(field, msgInvalidDate)
		return nil
	}
	return &d
}

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
