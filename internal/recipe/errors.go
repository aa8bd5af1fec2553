package recipe

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotARecipe marks a document (or record) that holds no recipe.
	ErrNotARecipe = errors.New("not a recipe")
	// ErrInvalidRecord marks a record that fails structural validation.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrNotRegistered is returned when a (source, address) pair was never registered.
	ErrNotRegistered = errors.New("address not registered")
	// ErrRecipeNotPersisted is returned when no recipe row exists yet for a stable id.
	ErrRecipeNotPersisted = errors.New("recipe not persisted")
)

// FetchErrorKind classifies a failed fetch.
type FetchErrorKind string

// Fetch failure classes.
const (
	FetchTimeout   FetchErrorKind = "timeout"
	FetchStatus    FetchErrorKind = "status"
	FetchTransport FetchErrorKind = "transport"
)

// FetchError is the only error type a Fetcher returns.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractionError wraps a parse failure for one document.
type ExtractionError struct {
	Address string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Address, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// PersistError reports the record and stage that aborted a Persist call.
type PersistError struct {
	RecipeName string
	StableID   int64
	Stage      string
	Err        error
}

func (e *PersistError) Error() string {
	if e.RecipeName == "" && e.StableID == 0 {
		return fmt.Sprintf("persist %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("persist %s for %q (stable id %d): %v", e.Stage, e.RecipeName, e.StableID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// NewFetchError classifies a non-status fetch failure as a timeout or a
// transport error.
func NewFetchError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchTransport
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		kind = FetchTimeout
	}
	return &FetchError{URL: url, Kind: kind, Err: err}
}

// NewStatusError reports a completed exchange with a non-2xx status.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{URL: url, Kind: FetchStatus, StatusCode: status, Err: fmt.Errorf("unexpected status %d", status)}
}
