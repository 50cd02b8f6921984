package core

import (
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidOrdering = errors.New("invalid ordering field")

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy maps orderings onto columns and renders an ORDER BY clause.
// Fields missing from columns are rejected so that user input never reaches the query text.
// fallback is used when ordering is empty.
func OrderBy(ordering []DBOrdering, columns map[string]string, fallback string) (string, error) {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback, nil
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			return "", NewValidationError(errors.Wrap(ErrInvalidOrdering, ord.Field), FieldError{
				Field: "ordering",
				Error: ErrInvalidOrdering.Error() + ": " + ord.Field,
			})
		}
		parts = append(parts, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
