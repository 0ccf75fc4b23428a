package ports

import (
	"context"

	"github.com/origami/origamid/internal/core/domain"
)

// ImageBuildStreamer builds container images from a build context directory.
type ImageBuildStreamer interface {
	// BuildStream builds the image and returns every record the build
	// emitted, in order. On failure it returns the records received so far
	// along with the error.
	BuildStream(ctx context.Context, contextDir string) ([]domain.BuildRecord, error)
}

// SourceFetcher materializes a demo's source tree on disk.
type SourceFetcher interface {
	// Fetch replaces dest with a checkout of repoURL.
	Fetch(ctx context.Context, repoURL, dest string) error
}
