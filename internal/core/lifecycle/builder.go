package lifecycle

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

var (
	// builtPattern matches the final message of a successful classic build.
	// The captured reference is a short, human-readable id and is not used
	// as the image id.
	builtPattern = regexp.MustCompile(`(?i)^Successfully built (\S+)$`)

	// digestPattern matches a fully qualified image id such as "sha256:<hex>".
	digestPattern = regexp.MustCompile(`^[a-z0-9]+:([a-f0-9]+)$`)
)

// ImageBuilder builds a demo image and records the build log.
type ImageBuilder struct {
	streamer ports.ImageBuildStreamer
	logs     ports.LogStore
	log      *log.Logger
}

// NewImageBuilder creates an ImageBuilder. A nil logger discards output.
func NewImageBuilder(streamer ports.ImageBuildStreamer, logs ports.LogStore, logger *log.Logger) *ImageBuilder {
	return &ImageBuilder{streamer: streamer, logs: logs, log: orDiscard(logger)}
}

// Build streams a build of contextDir, stores the complete log under logID
// and returns the id of the built image.
//
// The log is stored whatever the outcome. A daemon failure is returned as the
// *domain.ConnectionError the streamer reported, a build that produced no
// usable image id as a *domain.BuildError. Local failures, such as an
// unreadable build context, are returned wrapped.
func (b *ImageBuilder) Build(ctx context.Context, contextDir, logID string) (string, error) {
	b.log.Info("building image", "context", contextDir, "log", logID)
	records, streamErr := b.streamer.BuildStream(ctx, contextDir)

	if err := b.logs.Write(logID, records); err != nil {
		return "", fmt.Errorf("write build log %s: %w", logID, err)
	}
	if streamErr != nil {
		if domain.IsConnectionError(streamErr) {
			return "", streamErr
		}
		return "", fmt.Errorf("build image: %w", streamErr)
	}

	imageID, err := ExtractImageID(records)
	if err != nil {
		b.log.Error("error while parsing image id", "log", logID, "err", err)
		return "", err
	}
	b.log.Info("image built", "image", imageID)
	return imageID, nil
}

// ExtractImageID returns the image id of a finished build log.
//
// The build succeeded if the last record is well formed and the last textual
// message reads "Successfully built <ref>". The id itself comes from the last
// auxiliary record carrying an ID, with the digest algorithm prefix stripped.
// For the classic builder this is the record just before the final message.
func ExtractImageID(records []domain.BuildRecord) (string, error) {
	if len(records) == 0 {
		return "", &domain.BuildError{Reason: "empty build log"}
	}
	if _, ok := records[len(records)-1].Decode(); !ok {
		return "", &domain.BuildError{Reason: "malformed final log record"}
	}

	var (
		lastMessage string
		lastAux     *domain.BuildAux
	)
	for _, rec := range records {
		msg, ok := rec.Decode()
		if !ok {
			continue
		}
		if msg.Error != "" {
			return "", &domain.BuildError{Reason: strings.TrimSpace(msg.Error)}
		}
		if text := strings.TrimSpace(msg.Stream); text != "" {
			lastMessage = text
		}
		if msg.Aux != nil {
			lastAux = msg.Aux
		}
	}

	if !builtPattern.MatchString(lastMessage) {
		return "", &domain.BuildError{Reason: fmt.Sprintf("unexpected final message %q", lastMessage)}
	}
	if lastAux == nil {
		return "", &domain.BuildError{Reason: "no image id record in build log"}
	}
	m := digestPattern.FindStringSubmatch(lastAux.ID)
	if m == nil {
		return "", &domain.BuildError{Reason: fmt.Sprintf("malformed image id %q", lastAux.ID)}
	}
	return m[1], nil
}
