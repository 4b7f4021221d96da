// internal/catalog/postgres.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libracatalog/internal/apperr"
	"libracatalog/internal/clock"
	"libracatalog/internal/paging"
)

const (
	dialectPostgres = "postgres"
	pqForeignKey    = "23503"
	pqCheck         = "23514"
)

// constraintFields maps foreign key and check constraint names from the
// schema to the input field that violated them.
var constraintFields = map[string]string{
	"books_author_id_fkey":            "author",
	"books_language_id_fkey":          "language",
	"book_genres_genre_id_fkey":       "genre",
	"book_instances_book_id_fkey":     "book",
	"book_instances_borrower_id_fkey": "borrower",
	"book_instances_status_check":     "status",
}

// PostgresStore is the Store backed by the schema in internal/database.
type PostgresStore struct {
	db      *sqlx.DB
	builder goqu.DialectWrapper
	tracer  trace.Tracer
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: goqu.Dialect(dialectPostgres),
		tracer:  otel.Tracer("libracatalog/catalog"),
	}
}

func (s *PostgresStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "catalog.store."+op, trace.WithAttributes(attrs...))
}

// storeErr translates driver errors into the shared taxonomy and records
// them on the span.
func storeErr(span trace.Span, op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == pqForeignKey || pqErr.Code == pqCheck) {
		if field, ok := constraintFields[pqErr.Constraint]; ok {
			return apperr.NewValidationError(field, msgInvalidChoice)
		}
	}
	err = apperr.Storage(op, err)
	if !errors.Is(err, apperr.ErrNotFound) {
		span.RecordError(err)
	}
	return err
}

func expectOne(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(kind, id)
	}
	return nil
}

func (s *PostgresStore) selectPage(ctx context.Context, dest any, ds *goqu.SelectDataset, page paging.Request) (int, error) {
	countSQL, countArgs, err := ds.ClearOrder().Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return 0, err
	}

	query, args, err := ds.Limit(uint(page.Limit())).Offset(uint(page.Offset())).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build select query: %w", err)
	}
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *PostgresStore) CreateGenre(ctx context.Context, g *Genre) error {
	ctx, span := s.start(ctx, "create_genre")
	defer span.End()

	err := s.db.GetContext(ctx, &g.ID, `INSERT INTO genres (name) VALUES ($1) RETURNING id`, g.Name)
	return storeErr(span, "create genre", err)
}

func (s *PostgresStore) GetGenre(ctx context.Context, id int64) (*Genre, error) {
	ctx, span := s.start(ctx, "get_genre", attribute.Int64("genre.id", id))
	defer span.End()

	var g Genre
	err := s.db.GetContext(ctx, &g, `SELECT id, name FROM genres WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("genre", id)
	}
	if err != nil {
		return nil, storeErr(span, "get genre", err)
	}
	return &g, nil
}

func (s *PostgresStore) ListGenres(ctx context.Context, page paging.Request) ([]Genre, int, error) {
	ctx, span := s.start(ctx, "list_genres", attribute.Int("page", page.Page))
	defer span.End()

	ds := s.builder.From("genres")
	genres := []Genre{}
	total, err := s.selectPage(ctx, &genres,
		ds.Select("id", "name").Order(goqu.C("name").Asc(), goqu.C("id").Asc()), page)
	if err != nil {
		return nil, 0, storeErr(span, "list genres", err)
	}
	return genres, total, nil
}

func (s *PostgresStore) DeleteGenre(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "delete_genre", attribute.Int64("genre.id", id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM genres WHERE id = $1`, id)
	if err == nil {
		err = expectOne(res, "genre", id)
	}
	return storeErr(span, "delete genre", err)
}

func (s *PostgresStore) CreateLanguage(ctx context.Context, l *Language) error {
	ctx, span := s.start(ctx, "create_language")
	defer span.End()

	err := s.db.GetContext(ctx, &l.ID, `INSERT INTO languages (name) VALUES ($1) RETURNING id`, l.Name)
	return storeErr(span, "create language", err)
}

func (s *PostgresStore) GetLanguage(ctx context.Context, id int64) (*Language, error) {
	ctx, span := s.start(ctx, "get_language", attribute.Int64("language.id", id))
	defer span.End()

	var l Language
	err := s.db.GetContext(ctx, &l, `SELECT id, name FROM languages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("language", id)
	}
	if err != nil {
		return nil, storeErr(span, "get language", err)
	}
	return &l, nil
}

func (s *PostgresStore) ListLanguages(ctx context.Context, page paging.Request) ([]Language, int, error) {
	ctx, span := s.start(ctx, "list_languages", attribute.Int("page", page.Page))
	defer span.End()

	ds := s.builder.From("languages")
	languages := []Language{}
	total, err := s.selectPage(ctx, &languages,
		ds.Select("id", "name").Order(goqu.C("name").Asc(), goqu.C("id").Asc()), page)
	if err != nil {
		return nil, 0, storeErr(span, "list languages", err)
	}
	return languages, total, nil
}

func (s *PostgresStore) DeleteLanguage(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "delete_language", attribute.Int64("language.id", id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM languages WHERE id = $1`, id)
	if err == nil {
		err = expectOne(res, "language", id)
	}
	return storeErr(span, "delete language", err)
}

const authorColumns = `id, first_name, last_name, date_of_birth, date_of_death`

func normalizeAuthor(a *Author) {
	a.DateOfBirth = dateOnly(a.DateOfBirth)
	a.DateOfDeath = dateOnly(a.DateOfDeath)
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := clock.Date(*t)
	return &d
}

func (s *PostgresStore) CreateAuthor(ctx context.Context, a *Author) error {
	ctx, span := s.start(ctx, "create_author")
	defer span.End()

	err := s.db.GetContext(ctx, &a.ID, `
		INSERT INTO authors (first_name, last_name, date_of_birth, date_of_death)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, a.FirstName, a.LastName, a.DateOfBirth, a.DateOfDeath)
	return storeErr(span, "create author", err)
}

func (s *PostgresStore) GetAuthor(ctx context.Context, id int64) (*Author, error) {
	ctx, span := s.start(ctx, "get_author", attribute.Int64("author.id", id))
	defer span.End()

	var a Author
	err := s.db.GetContext(ctx, &a, `SELECT `+authorColumns+` FROM authors WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("author", id)
	}
	if err != nil {
		return nil, storeErr(span, "get author", err)
	}
	normalizeAuthor(&a)
	return &a, nil
}

func (s *PostgresStore) UpdateAuthor(ctx context.Context, a *Author) error {
	ctx, span := s.start(ctx, "update_author", attribute.Int64("author.id", a.ID))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE authors
		SET first_name = $2, last_name = $3, date_of_birth = $4, date_of_death = $5
		WHERE id = $1
	`, a.ID, a.FirstName, a.LastName, a.DateOfBirth, a.DateOfDeath)
	if err == nil {
		err = expectOne(res, "author", a.ID)
	}
	return storeErr(span, "update author", err)
}

func (s *PostgresStore) DeleteAuthor(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "delete_author", attribute.Int64("author.id", id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err == nil {
		err = expectOne(res, "author", id)
	}
	return storeErr(span, "delete author", err)
}

func (s *PostgresStore) ListAuthors(ctx context.Context, page paging.Request) ([]Author, int, error) {
	ctx, span := s.start(ctx, "list_authors", attribute.Int("page", page.Page))
	defer span.End()

	ds := s.builder.From("authors").
		Select("id", "first_name", "last_name", "date_of_birth", "date_of_death").
		Order(goqu.C("first_name").Asc(), goqu.C("last_name").Asc(), goqu.C("id").Asc())
	authors := []Author{}
	total, err := s.selectPage(ctx, &authors, ds, page)
	if err != nil {
		return nil, 0, storeErr(span, "list authors", err)
	}
	for i := range authors {
		normalizeAuthor(&authors[i])
	}
	return authors, total, nil
}

const bookColumns = `id, title, isbn, author_id, language_id`

// attachGenres loads the genres of every book in one query.
func (s *PostgresStore) attachGenres(ctx context.Context, q sqlx.QueryerContext, books []Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]int64, len(books))
	index := make(map[int64]int, len(books))
	for i, b := range books {
		ids[i] = b.ID
		index[b.ID] = i
		books[i].Genres = []Genre{}
	}

	var rows []struct {
		BookID int64 `db:"book_id"`
		Genre
	}
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT bg.book_id, g.id, g.name
		FROM book_genres bg
		JOIN genres g ON g.id = bg.genre_id
		WHERE bg.book_id = ANY($1)
		ORDER BY bg.book_id, g.id
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	for _, r := range rows {
		i := index[r.BookID]
		books[i].Genres = append(books[i].Genres, r.Genre)
	}
	return nil
}

func replaceGenres(ctx context.Context, tx *sqlx.Tx, bookID int64, genreIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM book_genres WHERE book_id = $1`, bookID); err != nil {
		return err
	}
	if len(genreIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO book_genres (book_id, genre_id)
		SELECT $1, unnest($2::bigint[])
	`, bookID, pq.Array(genreIDs))
	return err
}

func (s *PostgresStore) CreateBook(ctx context.Context, b *Book, genreIDs []int64) error {
	ctx, span := s.start(ctx, "create_book")
	defer span.End()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &b.ID, `
			INSERT INTO books (title, isbn, author_id, language_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, b.Title, b.ISBN, b.AuthorID, b.LanguageID)
		if err != nil {
			return err
		}
		if err := replaceGenres(ctx, tx, b.ID, genreIDs); err != nil {
			return err
		}
		books := []Book{*b}
		if err := s.attachGenres(ctx, tx, books); err != nil {
			return err
		}
		*b = books[0]
		return nil
	})
	return storeErr(span, "create book", err)
}

func (s *PostgresStore) GetBook(ctx context.Context, id int64) (*Book, error) {
	ctx, span := s.start(ctx, "get_book", attribute.Int64("book.id", id))
	defer span.End()

	var b Book
	err := s.db.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("book", id)
	}
	if err != nil {
		return nil, storeErr(span, "get book", err)
	}
	books := []Book{b}
	if err := s.attachGenres(ctx, s.db, books); err != nil {
		return nil, storeErr(span, "get book genres", err)
	}
	return &books[0], nil
}

func (s *PostgresStore) UpdateBook(ctx context.Context, b *Book, genreIDs []int64) error {
	ctx, span := s.start(ctx, "update_book", attribute.Int64("book.id", b.ID))
	defer span.End()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE books SET title = $2, isbn = $3, author_id = $4, language_id = $5
			WHERE id = $1
		`, b.ID, b.Title, b.ISBN, b.AuthorID, b.LanguageID)
		if err != nil {
			return err
		}
		if err := expectOne(res, "book", b.ID); err != nil {
			return err
		}
		if err := replaceGenres(ctx, tx, b.ID, genreIDs); err != nil {
			return err
		}
		books := []Book{*b}
		if err := s.attachGenres(ctx, tx, books); err != nil {
			return err
		}
		*b = books[0]
		return nil
	})
	return storeErr(span, "update book", err)
}

func (s *PostgresStore) DeleteBook(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "delete_book", attribute.Int64("book.id", id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err == nil {
		err = expectOne(res, "book", id)
	}
	return storeErr(span, "delete book", err)
}

func (s *PostgresStore) ListBooks(ctx context.Context, page paging.Request) ([]Book, int, error) {
	ctx, span := s.start(ctx, "list_books", attribute.Int("page", page.Page))
	defer span.End()

	ds := s.builder.From("books").
		Select("id", "title", "isbn", "author_id", "language_id").
		Order(goqu.C("title").Asc(), goqu.C("id").Asc())
	books := []Book{}
	total, err := s.selectPage(ctx, &books, ds, page)
	if err == nil {
		err = s.attachGenres(ctx, s.db, books)
	}
	if err != nil {
		return nil, 0, storeErr(span, "list books", err)
	}
	return books, total, nil
}

func (s *PostgresStore) BooksByAuthor(ctx context.Context, authorID int64) ([]Book, error) {
	ctx, span := s.start(ctx, "books_by_author", attribute.Int64("author.id", authorID))
	defer span.End()

	books := []Book{}
	err := s.db.SelectContext(ctx, &books, `
		SELECT `+bookColumns+` FROM books WHERE author_id = $1 ORDER BY title, id
	`, authorID)
	if err == nil {
		err = s.attachGenres(ctx, s.db, books)
	}
	if err != nil {
		return nil, storeErr(span, "books by author", err)
	}
	return books, nil
}

func (s *PostgresStore) BooksByID(ctx context.Context, ids []int64) (map[int64]Book, error) {
	ctx, span := s.start(ctx, "books_by_id", attribute.Int("book.count", len(ids)))
	defer span.End()

	out := make(map[int64]Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var books []Book
	err := s.db.SelectContext(ctx, &books, `
		SELECT `+bookColumns+` FROM books WHERE id = ANY($1)
	`, pq.Array(ids))
	if err == nil {
		err = s.attachGenres(ctx, s.db, books)
	}
	if err != nil {
		return nil, storeErr(span, "books by id", err)
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

const instanceColumns = `id, book_id, imprint, due_back, status, borrower_id`

func normalizeInstance(bi *BookInstance) {
	bi.DueBack = dateOnly(bi.DueBack)
}

func (s *PostgresStore) CreateInstance(ctx context.Context, bi *BookInstance) error {
	ctx, span := s.start(ctx, "create_instance")
	defer span.End()

	if bi.ID == uuid.Nil {
		bi.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO book_instances (id, book_id, imprint, due_back, status, borrower_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, bi.ID, bi.BookID, bi.Imprint, bi.DueBack, string(bi.Status), bi.BorrowerID)
	return storeErr(span, "create instance", err)
}

func (s *PostgresStore) GetInstance(ctx context.Context, id uuid.UUID) (*BookInstance, error) {
	ctx, span := s.start(ctx, "get_instance", attribute.String("instance.id", id.String()))
	defer span.End()

	var bi BookInstance
	err := s.db.GetContext(ctx, &bi, `SELECT `+instanceColumns+` FROM book_instances WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("book instance", id)
	}
	if err != nil {
		return nil, storeErr(span, "get instance", err)
	}
	normalizeInstance(&bi)
	return &bi, nil
}

func (s *PostgresStore) UpdateInstance(ctx context.Context, bi *BookInstance) error {
	ctx, span := s.start(ctx, "update_instance", attribute.String("instance.id", bi.ID.String()))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE book_instances
		SET book_id = $2, imprint = $3, due_back = $4, status = $5, borrower_id = $6
		WHERE id = $1
	`, bi.ID, bi.BookID, bi.Imprint, bi.DueBack, string(bi.Status), bi.BorrowerID)
	if err == nil {
		err = expectOne(res, "book instance", bi.ID)
	}
	return storeErr(span, "update instance", err)
}

func (s *PostgresStore) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.start(ctx, "delete_instance", attribute.String("instance.id", id.String()))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM book_instances WHERE id = $1`, id)
	if err == nil {
		err = expectOne(res, "book instance", id)
	}
	return storeErr(span, "delete instance", err)
}

func (f InstanceFilter) where() []exp.Expression {
	var where []exp.Expression
	if f.Status != "" {
		where = append(where, goqu.C("status").Eq(string(f.Status)))
	}
	if f.BorrowerID != nil {
		where = append(where, goqu.C("borrower_id").Eq(f.BorrowerID.String()))
	}
	if f.BookID != nil {
		where = append(where, goqu.C("book_id").Eq(*f.BookID))
	}
	return where
}

func (s *PostgresStore) ListInstances(ctx context.Context, filter InstanceFilter, page paging.Request) ([]BookInstance, int, error) {
	ctx, span := s.start(ctx, "list_instances",
		attribute.String("filter.status", string(filter.Status)),
		attribute.Int("page", page.Page),
	)
	defer span.End()

	ds := s.builder.From("book_instances").
		Select("id", "book_id", "imprint", "due_back", "status", "borrower_id").
		Where(filter.where()...).
		Order(goqu.C("due_back").Asc().NullsLast(), goqu.C("id").Asc())
	instances := []BookInstance{}
	total, err := s.selectPage(ctx, &instances, ds, page)
	if err != nil {
		return nil, 0, storeErr(span, "list instances", err)
	}
	for i := range instances {
		normalizeInstance(&instances[i])
	}
	return instances, total, nil
}

func (s *PostgresStore) CountInstances(ctx context.Context, filter InstanceFilter) (int, error) {
	ctx, span := s.start(ctx, "count_instances", attribute.String("filter.status", string(filter.Status)))
	defer span.End()

	query, args, err := s.builder.From("book_instances").
		Select(goqu.COUNT(goqu.Star())).
		Where(filter.where()...).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, storeErr(span, "count instances", err)
	}
	return n, nil
}

func (s *PostgresStore) SetDueBack(ctx context.Context, id uuid.UUID, dueBack time.Time) error {
	ctx, span := s.start(ctx, "set_due_back", attribute.String("instance.id", id.String()))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `UPDATE book_instances SET due_back = $2 WHERE id = $1`, id, dueBack)
	if err == nil {
		err = expectOne(res, "book instance", id)
	}
	return storeErr(span, "set due back", err)
}

var entityTables = map[Entity]string{
	EntityBooks:     "books",
	EntityAuthors:   "authors",
	EntityGenres:    "genres",
	EntityLanguages: "languages",
	EntityInstances: "book_instances",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (s *PostgresStore) Count(ctx context.Context, entity Entity, criteria ...Criteria) (int, error) {
	if err := checkCriteria(entity, criteria); err != nil {
		return 0, err
	}
	table := entityTables[entity]
	ctx, span := s.start(ctx, "count",
		attribute.String("entity", string(entity)),
		attribute.Int("criteria", len(criteria)),
	)
	defer span.End()

	where := make([]exp.Expression, 0, len(criteria))
	for _, c := range criteria {
		pattern := containsPattern(c.Contains)
		if entity == EntityBooks && c.Field == "genre" {
			where = append(where, goqu.L(`EXISTS (
				SELECT 1 FROM book_genres bg JOIN genres g ON g.id = bg.genre_id
				WHERE bg.book_id = books.id AND g.name ILIKE ?
			)`, pattern))
			continue
		}
		where = append(where, goqu.I(table+"."+c.Field).ILike(pattern))
	}

	query, args, err := s.builder.From(table).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, storeErr(span, "count "+string(entity), err)
	}
	return n, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
