package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when the target cannot be parsed as an http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrTooManyRedirects is returned when the redirect chain exceeds the hop limit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrUnexpectedStatus is returned when the content source answers with a 4xx or 5xx status.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrUnreadableDocument is returned when a fetched document cannot be decoded into text.
	ErrUnreadableDocument = errors.New("unreadable document")
)

// FetchError reports a failure to retrieve content from URL. The underlying
// cause is available through errors.Unwrap.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
