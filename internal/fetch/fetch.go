package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dashsync/internal/domain"
)

// ErrorKind classifies one fetch failure.
// Params: none.
// Returns: closed set of failure categories.
type ErrorKind string

const (
	// ErrTransport marks HTTP status or network failures.
	ErrTransport ErrorKind = "transport"
	// ErrParse marks unreadable response bodies.
	ErrParse ErrorKind = "parse"
	// ErrConnect marks SQL connection failures.
	ErrConnect ErrorKind = "connect"
	// ErrQuery marks SQL query failures.
	ErrQuery ErrorKind = "query"
	// ErrUnsupportedShape marks JSON bodies with no tabular interpretation.
	ErrUnsupportedShape ErrorKind = "unsupported_shape"
)

// FetchError is one classified fetch failure local to a single tick.
// Params: failure category and root cause.
// Returns: typed error surfaced via logs only.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

// Error renders the classified failure.
// Params: none.
// Returns: category-prefixed message.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the root cause.
// Params: none.
// Returns: wrapped error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// fetchErr wraps a cause with its category.
// Params: category and cause.
// Returns: classified fetch error.
func fetchErr(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// Fetcher pulls full dataset snapshots from configured sources.
// Params: shared HTTP client with deadline and logger.
// Returns: stateless fetch adapter set, one call per due target per tick.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a fetcher whose blocking calls honor the given deadline.
// Params: per-call timeout and logger.
// Returns: fetcher instance.
func New(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch pulls one snapshot for the target's source kind.
// Params: context and sync target.
// Returns: dataset snapshot or classified FetchError. No retry; the next
// scheduled tick retries naturally.
func (f *Fetcher) Fetch(ctx context.Context, target domain.SyncTarget) (domain.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	switch target.Kind {
	case domain.SourceSpreadsheet:
		return f.fetchSpreadsheet(ctx, target.Connection.URL)
	case domain.SourceRESTAPI:
		return f.fetchRESTAPI(ctx, target.Connection.URL)
	case domain.SourceSQL:
		return f.fetchSQL(ctx, target.Connection)
	default:
		return domain.Table{}, fetchErr(ErrUnsupportedShape, fmt.Errorf("unknown source kind %q", target.Kind))
	}
}

// get issues one GET and returns the body for 2xx responses.
// Params: context and URL.
// Returns: response body or transport-classified error.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fetchErr(ErrTransport, err)
	}
	response, err := f.client.Do(request)
	if err != nil {
		return nil, fetchErr(ErrTransport, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fetchErr(ErrTransport, fmt.Errorf("unexpected status %d from %s", response.StatusCode, url))
	}
	body, err := readAllBody(response)
	if err != nil {
		return nil, fetchErr(ErrTransport, err)
	}
	return body, nil
}
