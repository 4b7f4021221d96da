// internal/catalog/summary.go
package catalog

import (
	"context"
	"fmt"
)

// Visits counts how many times one client has opened the index.
type Visits int

// SummaryMatch counts rows of Entity whose Field contains a substring.
type SummaryMatch struct {
	Label    string `yaml:"label"`
	Entity   Entity `yaml:"entity"`
	Criteria `yaml:",inline"`
}

// DefaultSummaryMatches are shown on the index when none are configured.
var DefaultSummaryMatches = []SummaryMatch{
	{Label: "books_literature", Entity: EntityBooks, Criteria: Criteria{Field: "genre", Contains: "文學"}},
	{Label: "books_cat", Entity: EntityBooks, Criteria: Criteria{Field: "title", Contains: "貓"}},
}

// Summary is the content of the catalog index.
type Summary struct {
	NumBooks              int            `json:"num_books"`
	NumInstances          int            `json:"num_book_instances"`
	NumInstancesAvailable int            `json:"num_book_instances_available"`
	NumAuthors            int            `json:"num_authors"`
	NumGenres             int            `json:"num_genres"`
	Matches               map[string]int `json:"matches"`
	NumVisits             Visits         `json:"num_visits"`
}

// Summary returns catalog totals and the caller's visit count before this
// request. The returned Visits is what the caller should store for the
// next request.
func (s *service) Summary(ctx context.Context, visits Visits) (*Summary, Visits, error) {
	sum := &Summary{
		Matches:   make(map[string]int, len(s.matches)),
		NumVisits: visits,
	}

	counts := []struct {
		entity Entity
		dest   *int
	}{
		{EntityBooks, &sum.NumBooks},
		{EntityInstances, &sum.NumInstances},
		{EntityAuthors, &sum.NumAuthors},
		{EntityGenres, &sum.NumGenres},
	}
	for _, c := range counts {
		n, err := s.store.Count(ctx, c.entity)
		if err != nil {
			return nil, visits, fmt.Errorf("failed to count %s: %w", c.entity, err)
		}
		*c.dest = n
	}

	n, err := s.store.CountInstances(ctx, InstanceFilter{Status: StatusAvailable})
	if err != nil {
		return nil, visits, fmt.Errorf("failed to count available instances: %w", err)
	}
	sum.NumInstancesAvailable = n

	for _, m := range s.matches {
		n, err := s.store.Count(ctx, m.Entity, m.Criteria)
		if err != nil {
			return nil, visits, fmt.Errorf("failed to count %s: %w", m.Label, err)
		}
		sum.Matches[m.Label] = n
	}

	return sum, visits + 1, nil
}
