package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestDisplayGenreUsesFirstThree(t *testing.T) {
	b := Book{Genres: []Genre{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}, {ID: 4, Name: "D"}}}
	assert.Equal(t, "A, B, C", b.DisplayGenre())

	assert.Equal(t, "", Book{}.DisplayGenre())
	assert.Equal(t, "Fantasy", Book{Genres: []Genre{{ID: 9, Name: "Fantasy"}}}.DisplayGenre())
}

func TestAuthorString(t *testing.T) {
	assert.Equal(t, "Ursula, Le Guin", Author{FirstName: "Ursula", LastName: "Le Guin"}.String())
}

func TestIsOverdue(t *testing.T) {
	today := date(t, "2026-10-15")
	yesterday := date(t, "2026-10-14")
	tomorrow := date(t, "2026-10-16")

	tests := []struct {
		name    string
		dueBack *time.Time
		status  Status
		want    bool
	}{
		{"no due date", nil, StatusOnLoan, false},
		{"due yesterday", &yesterday, StatusOnLoan, true},
		{"due today", &today, StatusOnLoan, false},
		{"due tomorrow", &tomorrow, StatusOnLoan, false},
		{"status is not consulted", &yesterday, StatusMaintenance, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bi := BookInstance{DueBack: tt.dueBack, Status: tt.status}
			assert.Equal(t, tt.want, bi.IsOverdue(today))
		})
	}
}

func TestParseStatus(t *testing.T) {
	for code, label := range statusLabels {
		got, err := ParseStatus(string(code))
		require.NoError(t, err)
		assert.Equal(t, code, got)

		got, err = ParseStatus(label)
		require.NoError(t, err)
		assert.Equal(t, code, got)
	}

	_, err := ParseStatus("x")
	assert.Error(t, err)
	_, err = ParseStatus("")
	assert.Error(t, err)
	assert.Equal(t, "On loan", StatusOnLoan.Label())
}
