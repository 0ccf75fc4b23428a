package builder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/archive"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// DefaultBuildTimeout bounds a whole image build.
const DefaultBuildTimeout = 15 * time.Minute

const dockerfile = "Dockerfile"

// maxRecordSize caps a single line of build output.
const maxRecordSize = 4 << 20

type imageBuildAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// Adapter implements ports.ImageBuildStreamer using the Docker SDK.
type Adapter struct {
	cli          imageBuildAPI
	buildTimeout time.Duration
}

var _ ports.ImageBuildStreamer = (*Adapter)(nil)

// NewBuilderAdapter creates a builder. A non-positive buildTimeout falls back
// to DefaultBuildTimeout.
func NewBuilderAdapter(cli imageBuildAPI, buildTimeout time.Duration) *Adapter {
	if buildTimeout <= 0 {
		buildTimeout = DefaultBuildTimeout
	}
	return &Adapter{cli: cli, buildTimeout: buildTimeout}
}

// BuildStream builds the Dockerfile in contextDir and collects the build
// output, one record per line.
func (a *Adapter) BuildStream(ctx context.Context, contextDir string) ([]domain.BuildRecord, error) {
	// The tarball is written in the background, so a missing context would
	// only surface as an empty upload.
	if _, err := os.Stat(filepath.Join(contextDir, dockerfile)); err != nil {
		return nil, fmt.Errorf("invalid build context: %w", err)
	}

	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	ctx, cancel := context.WithTimeout(ctx, a.buildTimeout)
	defer cancel()

	// The classic builder reports the image id in an aux record followed by
	// "Successfully built <id>", which is what the build log is judged on.
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Dockerfile: dockerfile,
		Remove:     true, // Remove intermediate containers
		Version:    types.BuilderV1,
	})
	if err != nil {
		return nil, &domain.ConnectionError{Op: "build image", Err: err}
	}
	defer resp.Body.Close()

	return readRecords(resp.Body)
}

func readRecords(r io.Reader) ([]domain.BuildRecord, error) {
	var records []domain.BuildRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		records = append(records, domain.NewBuildRecord(line))
	}
	if err := scanner.Err(); err != nil {
		return records, &domain.ConnectionError{Op: "read build output", Err: err}
	}
	return records, nil
}
