package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"

	"github.com/origami/origamid/internal/core/ports"
)

// Cloner fetches demo sources from git repositories.
type Cloner struct {
	progress io.Writer
}

var _ ports.SourceFetcher = (*Cloner)(nil)

// NewCloner creates a Cloner reporting clone progress to progress, which
// may be nil.
func NewCloner(progress io.Writer) *Cloner {
	return &Cloner{progress: progress}
}

// Fetch shallow-clones repoURL and swaps the checkout in at dest. dest is
// left untouched if the clone fails.
func (c *Cloner) Fetch(ctx context.Context, repoURL, dest string) error {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", parent, err)
	}
	tmpDir, err := os.MkdirTemp(parent, ".clone-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:      repoURL,
		Progress: c.progress,
		Depth:    1, // Shallow clone for speed
	})
	if err != nil {
		return fmt.Errorf("failed to clone repo: %w", err)
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dest, err)
	}
	if err := os.Rename(tmpDir, dest); err != nil {
		return fmt.Errorf("failed to move checkout into place: %w", err)
	}
	return nil
}
