package ingest

import "context"

// SourceKind tags where a document came from.
type SourceKind string

const (
	SourceCode SourceKind = "code"
	SourceWeb  SourceKind = "web"
	SourceText SourceKind = "text"
)

// Item is one ingestable unit: a repo-relative file or a URL.
type Item struct {
	// Ref is the repo-relative path for code, the URL for web.
	Ref  string
	Kind SourceKind
	// Load returns the normalized source bytes: raw file bytes for code,
	// extracted markdown (post boilerplate stripping) for web.
	Load func(ctx context.Context) ([]byte, error)
}

// Source produces the items of one ingest run.
type Source interface {
	// Acquire performs the expensive fetch step (clone, page fetches);
	// emit reports progress within the acquire band as a 0-1 fraction.
	Acquire(ctx context.Context, emit func(fraction float64, detail string)) error
	// Enumerate lists the items, honoring include/exclude rules.
	Enumerate(ctx context.Context) ([]Item, error)
}
