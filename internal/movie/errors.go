package movie

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSearchResults means the catalog search page had no result elements.
	ErrNoSearchResults = errors.New("no search results")
	// ErrParse means expected markup was absent from a page.
	ErrParse = errors.New("expected markup not found")
)

// StatusError reports a non-2xx response from a remote site.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}
