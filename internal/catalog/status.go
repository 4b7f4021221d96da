// internal/catalog/status.go
package catalog

import (
	"fmt"
	"time"
)

// Status is the availability of a BookInstance.
type Status string

const (
	StatusMaintenance Status = "m"
	StatusOnLoan      Status = "o"
	StatusAvailable   Status = "a"
	StatusReserved    Status = "r"
)

// DefaultStatus is assigned to new instances that do not name one.
const DefaultStatus = StatusMaintenance

var statusLabels = map[Status]string{
	StatusMaintenance: "Maintenance",
	StatusOnLoan:      "On loan",
	StatusAvailable:   "Available",
	StatusReserved:    "Reserved",
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human readable name of s.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus accepts a status code ("o") or its label ("On loan").
func ParseStatus(v string) (Status, error) {
	if s := Status(v); s.Valid() {
		return s, nil
	}
	for s, label := range statusLabels {
		if label == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", v)
}

// IsOverdue reports whether the instance was due back strictly before
// today. An instance without a due date is never overdue, and the status
// is not consulted.
func (bi BookInstance) IsOverdue(today time.Time) bool {
	return bi.DueBack != nil && bi.DueBack.Before(today)
}
