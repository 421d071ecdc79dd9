package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinYear is the earliest accepted model year.
const MinYear = 1900

// InputError is a user input that could not be parsed. The user is asked again.
type InputError struct {
	Field  string
	Input  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Input, e.Reason)
}

// IsInputError checks if an error is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// parsePrice reads a non-negative amount. Spaces and commas are ignored; 0 means "no bound".
func parsePrice(text string) (*int64, error) {
	cleaned := strings.NewReplacer(" ", "", ",", "", " ", "").Replace(text)
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return nil, &InputError{Field: "price", Input: text, Reason: "not a whole number"}
	}
	if n < 0 {
		return nil, &InputError{Field: "price", Input: text, Reason: "negative"}
	}
	if n == 0 {
		return nil, nil
	}
	return &n, nil
}

// parseYear reads a model year in [MinYear, currentYear]; 0 means "no bound".
func parseYear(text string, currentYear int) (*int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, &InputError{Field: "year", Input: text, Reason: "not a number"}
	}
	if n == 0 {
		return nil, nil
	}
	if n < MinYear || n > currentYear {
		return nil, &InputError{Field: "year", Input: text, Reason: fmt.Sprintf("outside %d-%d", MinYear, currentYear)}
	}
	return &n, nil
}
