package job

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNotReady    = errors.New("archive not ready")
	ErrNoSelection = errors.New("no items selected")
	ErrNoOwner     = errors.New("missing owner key")
)

func NewErrUnknownIndex(index int) error {
	return fmt.Errorf("selected index %d not present in playlist", index)
}

// FetchKind is a short classification of an item failure, stored on the item
// record and surfaced to pollers.
type FetchKind string

const (
	FetchUnavailable FetchKind = "unavailable"
	FetchNetwork     FetchKind = "network"
	FetchConversion  FetchKind = "conversion"
	FetchCanceled    FetchKind = "canceled"
)

// FetchError is a classified per-item failure. It never propagates past the
// item worker; it is recorded on the item and the job carries on.
type FetchError struct {
	Kind FetchKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClassifyFetchError extracts the failure kind, defaulting to network for
// plain errors from the collaborator.
func ClassifyFetchError(err error) FetchKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return FetchCanceled
	}
	return FetchNetwork
}
