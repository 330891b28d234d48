// Package ports declares the interfaces between the core and its
// collaborators. Adapters assert conformance with a package-level
// `var _ ports.X = Adapter{}` line.
package ports

import (
	"context"

	"rezgo/internal/model"
)

// PackageRepository supplies candidate packages for a name. The resolver
// depends on this port; the repository scanner is the default adapter.
type PackageRepository interface {
	// Candidates returns every known package with the given name, in no
	// guaranteed order. An unknown name returns an empty slice, not an
	// error.
	Candidates(ctx context.Context, name string) ([]model.Package, error)
}
