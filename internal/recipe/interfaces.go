package recipe

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves one remote resource. Failures are returned as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns one fetched document into a normalized record. It returns
// ErrNotARecipe when the document holds no recipe, or an *ExtractionError.
type Extractor interface {
	Extract(doc Document) (Record, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(doc Document) (Record, error)

// Extract calls f(doc).
func (f ExtractorFunc) Extract(doc Document) (Record, error) {
	return f(doc)
}

// Registry is the reference resolver: source addresses -> stable ids -> recipe ids.
type Registry interface {
	RegisterAddresses(ctx context.Context, source string, addrs []Address) (int, error)
	StableID(ctx context.Context, source, address string) (int64, error)
	RecipeIdentity(ctx context.Context, stableID int64) (int64, error)
	ListAddresses(ctx context.Context, source string, pendingOnly bool) ([]Registration, error)
}

// Writer persists records transactionally.
type Writer interface {
	Persist(ctx context.Context, records []Record) (PersistReport, error)
}

// ReferenceWriter stores ingredient reference rows and reports how many were
// new. Rows already present for (Source, Name) are left untouched.
type ReferenceWriter interface {
	PutReferences(ctx context.Context, items []ReferenceIngredient) (int, error)
}

// Store combines the resolver and the writer over the same backend.
type Store interface {
	Registry
	Writer
}

// RunRecorder keeps a log of completed runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, report RunReport) error
}

// BlobStore archives raw documents and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
