package codeset

import "context"

// Loader supplies the full code-set catalog from a backing source. The
// validator loads once, lazily, and holds the result until ClearCache.
type Loader interface {
	LoadAll(ctx context.Context) ([]Entry, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) ([]Entry, error)

func (f LoaderFunc) LoadAll(ctx context.Context) ([]Entry, error) { return f(ctx) }
