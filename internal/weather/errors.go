package weather

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no stored record matches a lookup.
var ErrNotFound = errors.New("record not found")

// UpstreamError reports a failed call to the weather provider. A non-2xx
// response carries Status and Body; a transport failure carries Err and,
// when the request deadline was hit, Timeout.
type UpstreamError struct {
	Op      string
	Status  int
	Body    string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s request failed with status %d: %s", e.Op, e.Status, e.Body)
	}
	if e.Timeout {
		return fmt.Sprintf("upstream %s request timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s request failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports an upstream payload that is missing a
// required field or carries the wrong type for it.
type MalformedResponseError struct {
	Kind   Kind
	Field  string
	Detail string
}

func (e *MalformedResponseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("malformed %s payload: field %q: %s", e.Kind, e.Field, e.Detail)
	}
	return fmt.Sprintf("malformed %s payload: missing or invalid field %q", e.Kind, e.Field)
}

// StorageError reports a persistence failure inside the fetch pipeline.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// malformedFromJSON converts a JSON decode failure into a
// MalformedResponseError, naming the offending field when the decoder
// identified one.
func malformedFromJSON(kind Kind, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &MalformedResponseError{Kind: kind, Field: typeErr.Field}
	}
	return &MalformedResponseError{Kind: kind, Field: "body", Detail: err.Error()}
}
