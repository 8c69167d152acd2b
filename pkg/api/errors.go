package api

import "fmt"

// RemoteError is a non-success status carried in a well-formed API reply.
// Fatal for list operations; individual chapter fetches downgrade it to an
// unavailable body.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// TransportError is an HTTP-level failure that survived the retry budget.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
