package ports

import "context"

// SourceFetcher retrieves build inputs referenced by URL rather than a
// local directory. Fetch returns the directory holding the fetched tree
// inside the persistent build cache.
type SourceFetcher interface {
	Fetch(ctx context.Context, source string, packageName string, version string, force bool) (string, error)
}
