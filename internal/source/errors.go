package source

import "fmt"

// NetworkError reports a transport failure or a non-success HTTP status.
type NetworkError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a body or file that is not a JSON object.
type DecodeError struct {
	Origin string // URL or file path
	Mock   bool   // true when the payload came from a mock file
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Origin, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NotFoundError reports a mock file that does not exist.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }
