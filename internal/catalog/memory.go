// internal/catalog/memory.go
package catalog

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/apperr"
	"libracatalog/internal/paging"
)

// MemoryStore keeps the catalog in process memory. It applies the same
// referential rules as the Postgres schema: deleting a referenced row
// nulls the reference on dependents and never deletes them.
type MemoryStore struct {
	mu         sync.RWMutex
	genres     map[int64]Genre
	languages  map[int64]Language
	authors    map[int64]Author
	books      map[int64]Book
	bookGenres map[int64][]int64
	instances  map[uuid.UUID]BookInstance
	nextID     int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		genres:     make(map[int64]Genre),
		languages:  make(map[int64]Language),
		authors:    make(map[int64]Author),
		books:      make(map[int64]Book),
		bookGenres: make(map[int64][]int64),
		instances:  make(map[uuid.UUID]BookInstance),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// ForgetBorrower clears every instance borrowed by userID, mirroring the
// SET NULL rule applied when a member row is deleted.
func (m *MemoryStore) ForgetBorrower(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, bi := range m.instances {
		if bi.BorrowerID != nil && *bi.BorrowerID == userID {
			bi.BorrowerID = nil
			m.instances[id] = bi
		}
	}
}

func (m *MemoryStore) CreateGenre(_ context.Context, g *Genre) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.id()
	m.genres[g.ID] = *g
	return nil
}

func (m *MemoryStore) GetGenre(_ context.Context, id int64) (*Genre, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.genres[id]
	if !ok {
		return nil, apperr.NotFound("genre", id)
	}
	return &g, nil
}

func (m *MemoryStore) ListGenres(_ context.Context, page paging.Request) ([]Genre, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := slices.SortedFunc(maps.Values(m.genres), func(a, b Genre) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return paging.Slice(all, page), len(all), nil
}

func (m *MemoryStore) DeleteGenre(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.genres[id]; !ok {
		return apperr.NotFound("genre", id)
	}
	delete(m.genres, id)
	for bookID, ids := range m.bookGenres {
		m.bookGenres[bookID] = slices.DeleteFunc(ids, func(g int64) bool { return g == id })
	}
	return nil
}

func (m *MemoryStore) CreateLanguage(_ context.Context, l *Language) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.id()
	m.languages[l.ID] = *l
	return nil
}

func (m *MemoryStore) GetLanguage(_ context.Context, id int64) (*Language, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.languages[id]
	if !ok {
		return nil, apperr.NotFound("language", id)
	}
	return &l, nil
}

func (m *MemoryStore) ListLanguages(_ context.Context, page paging.Request) ([]Language, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := slices.SortedFunc(maps.Values(m.languages), func(a, b Language) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return paging.Slice(all, page), len(all), nil
}

func (m *MemoryStore) DeleteLanguage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.languages[id]; !ok {
		return apperr.NotFound("language", id)
	}
	delete(m.languages, id)
	for bookID, b := range m.books {
		if b.LanguageID != nil && *b.LanguageID == id {
			b.LanguageID = nil
			m.books[bookID] = b
		}
	}
	return nil
}

func (m *MemoryStore) CreateAuthor(_ context.Context, a *Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	m.authors[a.ID] = *a
	return nil
}

func (m *MemoryStore) GetAuthor(_ context.Context, id int64) (*Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.authors[id]
	if !ok {
		return nil, apperr.NotFound("author", id)
	}
	return &a, nil
}

func (m *MemoryStore) UpdateAuthor(_ context.Context, a *Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.authors[a.ID]; !ok {
		return apperr.NotFound("author", a.ID)
	}
	m.authors[a.ID] = *a
	return nil
}

func (m *MemoryStore) DeleteAuthor(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.authors[id]; !ok {
		return apperr.NotFound("author", id)
	}
	delete(m.authors, id)
	for bookID, b := range m.books {
		if b.AuthorID != nil && *b.AuthorID == id {
			b.AuthorID = nil
			m.books[bookID] = b
		}
	}
	return nil
}

func (m *MemoryStore) ListAuthors(_ context.Context, page paging.Request) ([]Author, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := slices.SortedFunc(maps.Values(m.authors), func(a, b Author) int {
		return cmp.Or(
			cmp.Compare(a.FirstName, b.FirstName),
			cmp.Compare(a.LastName, b.LastName),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return paging.Slice(all, page), len(all), nil
}

// checkBookRefs must be called with the lock held.
func (m *MemoryStore) checkBookRefs(b *Book, genreIDs []int64) error {
	fields := map[string]string{}
	if b.AuthorID != nil {
		if _, ok := m.authors[*b.AuthorID]; !ok {
			fields["author"] = msgInvalidChoice
		}
	}
	if b.LanguageID != nil {
		if _, ok := m.languages[*b.LanguageID]; !ok {
			fields["language"] = msgInvalidChoice
		}
	}
	for _, id := range genreIDs {
		if _, ok := m.genres[id]; !ok {
			fields["genre"] = msgInvalidChoice
		}
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

// withGenres must be called with the lock held.
func (m *MemoryStore) withGenres(b Book) Book {
	ids := slices.Sorted(slices.Values(m.bookGenres[b.ID]))
	b.Genres = make([]Genre, 0, len(ids))
	for _, id := range ids {
		b.Genres = append(b.Genres, m.genres[id])
	}
	return b
}

func (m *MemoryStore) CreateBook(_ context.Context, b *Book, genreIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkBookRefs(b, genreIDs); err != nil {
		return err
	}
	b.ID = m.id()
	b.Genres = nil
	m.books[b.ID] = *b
	m.bookGenres[b.ID] = slices.Clone(genreIDs)
	*b = m.withGenres(*b)
	return nil
}

func (m *MemoryStore) GetBook(_ context.Context, id int64) (*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return nil, apperr.NotFound("book", id)
	}
	b = m.withGenres(b)
	return &b, nil
}

func (m *MemoryStore) UpdateBook(_ context.Context, b *Book, genreIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return apperr.NotFound("book", b.ID)
	}
	if err := m.checkBookRefs(b, genreIDs); err != nil {
		return err
	}
	b.Genres = nil
	m.books[b.ID] = *b
	m.bookGenres[b.ID] = slices.Clone(genreIDs)
	*b = m.withGenres(*b)
	return nil
}

func (m *MemoryStore) DeleteBook(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return apperr.NotFound("book", id)
	}
	delete(m.books, id)
	delete(m.bookGenres, id)
	for instanceID, bi := range m.instances {
		if bi.BookID != nil && *bi.BookID == id {
			bi.BookID = nil
			m.instances[instanceID] = bi
		}
	}
	return nil
}

func (m *MemoryStore) sortedBooks(keep func(Book) bool) []Book {
	var out []Book
	for _, b := range m.books {
		if keep(b) {
			out = append(out, m.withGenres(b))
		}
	}
	slices.SortFunc(out, func(a, b Book) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (m *MemoryStore) ListBooks(_ context.Context, page paging.Request) ([]Book, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sortedBooks(func(Book) bool { return true })
	return paging.Slice(all, page), len(all), nil
}

func (m *MemoryStore) BooksByAuthor(_ context.Context, authorID int64) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedBooks(func(b Book) bool {
		return b.AuthorID != nil && *b.AuthorID == authorID
	}), nil
}

func (m *MemoryStore) BooksByID(_ context.Context, ids []int64) (map[int64]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]Book, len(ids))
	for _, id := range ids {
		if b, ok := m.books[id]; ok {
			out[id] = m.withGenres(b)
		}
	}
	return out, nil
}

// checkInstanceRefs must be called with the lock held. Borrowers live in
// the membership service and are not checked here.
func (m *MemoryStore) checkInstanceRefs(bi *BookInstance) error {
	if bi.BookID != nil {
		if _, ok := m.books[*bi.BookID]; !ok {
			return apperr.NewValidationError("book", msgInvalidChoice)
		}
	}
	return nil
}

func (m *MemoryStore) CreateInstance(_ context.Context, bi *BookInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInstanceRefs(bi); err != nil {
		return err
	}
	if bi.ID == uuid.Nil {
		bi.ID = uuid.New()
	}
	m.instances[bi.ID] = *bi
	return nil
}

func (m *MemoryStore) GetInstance(_ context.Context, id uuid.UUID) (*BookInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bi, ok := m.instances[id]
	if !ok {
		return nil, apperr.NotFound("book instance", id)
	}
	return &bi, nil
}

func (m *MemoryStore) UpdateInstance(_ context.Context, bi *BookInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[bi.ID]; !ok {
		return apperr.NotFound("book instance", bi.ID)
	}
	if err := m.checkInstanceRefs(bi); err != nil {
		return err
	}
	m.instances[bi.ID] = *bi
	return nil
}

func (m *MemoryStore) DeleteInstance(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return apperr.NotFound("book instance", id)
	}
	delete(m.instances, id)
	return nil
}

func (f InstanceFilter) matches(bi BookInstance) bool {
	if f.Status != "" && bi.Status != f.Status {
		return false
	}
	if f.BorrowerID != nil && (bi.BorrowerID == nil || *bi.BorrowerID != *f.BorrowerID) {
		return false
	}
	if f.BookID != nil && (bi.BookID == nil || *bi.BookID != *f.BookID) {
		return false
	}
	return true
}

func (m *MemoryStore) ListInstances(_ context.Context, filter InstanceFilter, page paging.Request) ([]BookInstance, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []BookInstance
	for _, bi := range m.instances {
		if filter.matches(bi) {
			all = append(all, bi)
		}
	}
	slices.SortFunc(all, compareDueBack)
	return paging.Slice(all, page), len(all), nil
}

func (m *MemoryStore) CountInstances(_ context.Context, filter InstanceFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, bi := range m.instances {
		if filter.matches(bi) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SetDueBack(_ context.Context, id uuid.UUID, dueBack time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bi, ok := m.instances[id]
	if !ok {
		return apperr.NotFound("book instance", id)
	}
	bi.DueBack = &dueBack
	m.instances[id] = bi
	return nil
}

func (m *MemoryStore) Count(_ context.Context, entity Entity, criteria ...Criteria) (int, error) {
	if err := checkCriteria(entity, criteria); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []func(field string) []string
	switch entity {
	case EntityBooks:
		for _, b := range m.books {
			b := m.withGenres(b)
			rows = append(rows, func(field string) []string {
				switch field {
				case "title":
					return []string{b.Title}
				case "isbn":
					return []string{b.ISBN}
				}
				names := make([]string, 0, len(b.Genres))
				for _, g := range b.Genres {
					names = append(names, g.Name)
				}
				return names
			})
		}
	case EntityAuthors:
		for _, a := range m.authors {
			rows = append(rows, func(field string) []string {
				if field == "first_name" {
					return []string{a.FirstName}
				}
				return []string{a.LastName}
			})
		}
	case EntityGenres:
		for _, g := range m.genres {
			rows = append(rows, func(string) []string { return []string{g.Name} })
		}
	case EntityLanguages:
		for _, l := range m.languages {
			rows = append(rows, func(string) []string { return []string{l.Name} })
		}
	case EntityInstances:
		for _, bi := range m.instances {
			rows = append(rows, func(string) []string { return []string{bi.Imprint} })
		}
	}

	n := 0
	for _, values := range rows {
		if matchesAll(values, criteria) {
			n++
		}
	}
	return n, nil
}

func matchesAll(values func(field string) []string, criteria []Criteria) bool {
	for _, c := range criteria {
		needle := strings.ToLower(c.Contains)
		found := slices.ContainsFunc(values(c.Field), func(v string) bool {
			return strings.Contains(strings.ToLower(v), needle)
		})
		if !found {
			return false
		}
	}
	return true
}
