package scihub

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate reports a date filter value in none of the accepted forms.
	ErrInvalidDate = errors.New("unsupported date value")

	// ErrInvalidResponse reports a catalog body that looked like JSON but did
	// not decode. The message text is part of the catalog client's contract
	// and is matched by callers.
	ErrInvalidResponse = errors.New("API response not valid. JSON decoding failed.")

	// ErrChecksumMismatch is wrapped by every ChecksumError.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// APIError is a failure reported by the catalog itself: a structured error
// document, or a raw text/HTML body such as a maintenance page. Message holds
// the server's text verbatim so callers can match known substrings.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog error (HTTP %d): %s", e.StatusCode, e.Message)
}

// ChecksumError reports a downloaded file whose MD5 digest does not match the
// catalog's. The offending file has already been removed when this is
// returned.
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// TransportError reports a network-level failure while talking to the
// catalog. Partial downloads are kept on disk so a later attempt can resume.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transfer of %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
