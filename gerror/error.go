package gerror

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageNotFound is used when the object is not found in the storage
	ErrStorageNotFound = errors.New("not found in the Storage")
	// ErrNilDBTransaction indicates the db transaction has not been properly initialized
	ErrNilDBTransaction = errors.New("database transaction not properly initialized")
	// ErrStorageNotRegister is used when the selected storage is not registered
	ErrStorageNotRegister = errors.New("selected storage not registered")

	// ErrInvalidAmount is used when the requested amount is zero or negative
	ErrInvalidAmount = errors.New("requested amount must be positive")
	// ErrInsufficientBalance is used when the total balance across chains cannot cover the requested amount
	ErrInsufficientBalance = errors.New("insufficient balance across chains")
	// ErrNoRouteFound is used when no viable path exists through the registry/liquidity graph
	ErrNoRouteFound = errors.New("no route found")
	// ErrQuoteUnavailable is used when a quote provider fails to return a usable quote
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrUnsupportedChain is used when the chainID is not registered
	ErrUnsupportedChain = errors.New("not registered chain")
	// ErrUnsupportedAsset is used when the asset is not registered for the chain
	ErrUnsupportedAsset = errors.New("not registered asset")
	// ErrInvalidRoute is used when a resolved route is structurally empty or malformed
	ErrInvalidRoute = errors.New("invalid route")
	// ErrMalformedRequest is used when a request body cannot be decoded
	ErrMalformedRequest = errors.New("malformed request body")

	// ErrJobAlreadyExecuted is used when a deposit arrives for an already executed job
	ErrJobAlreadyExecuted = errors.New("job already executed")
	// ErrJobKeyMismatch is used when a deposit key is not the salted key of its own message
	ErrJobKeyMismatch = errors.New("deposit key does not match the message content")
	// ErrSaltAlreadyConsumed is used when a batch salt is replayed on the same chain
	ErrSaltAlreadyConsumed = errors.New("salt already consumed")
	// ErrInvalidProof is used when a merkle proof does not open to the committed root
	ErrInvalidProof = errors.New("invalid authorization proof")
	// ErrInvalidSignature is used when the signature does not recover the expected signer over the root
	ErrInvalidSignature = errors.New("invalid authorization signature")
)

// NoRouteError wraps ErrNoRouteFound with the reason no path could be built.
type NoRouteError struct {
	Reason string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no route found: %s", e.Reason)
}

// Unwrap returns the sentinel so errors.Is(err, ErrNoRouteFound) works.
func (e *NoRouteError) Unwrap() error {
	return ErrNoRouteFound
}

// NewNoRouteError creates a NoRouteError with the given reason.
func NewNoRouteError(reason string) *NoRouteError {
	return &NoRouteError{Reason: reason}
}

// QuoteError wraps ErrQuoteUnavailable identifying the failing provider. It is
// the only transient error in the resolution taxonomy: the caller may retry
// the whole route resolution.
type QuoteError struct {
	Provider string
	Reason   string
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("quote unavailable from %s: %s", e.Provider, e.Reason)
}

// Unwrap returns the sentinel so errors.Is(err, ErrQuoteUnavailable) works.
func (e *QuoteError) Unwrap() error {
	return ErrQuoteUnavailable
}

// NewQuoteError creates a QuoteError for the given provider.
func NewQuoteError(provider, reason string) *QuoteError {
	return &QuoteError{Provider: provider, Reason: reason}
}

// InvalidRouteError wraps ErrInvalidRoute with the structural defect found.
// Observing it from valid inputs indicates a composer bug.
type InvalidRouteError struct {
	Reason string
}

func (e *InvalidRouteError) Error() string {
	return fmt.Sprintf("invalid route: %s", e.Reason)
}

// Unwrap returns the sentinel so errors.Is(err, ErrInvalidRoute) works.
func (e *InvalidRouteError) Unwrap() error {
	return ErrInvalidRoute
}
