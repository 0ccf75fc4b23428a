package lifecycle

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// DefaultDemoPort is the port a demo image serves on inside its container.
const DefaultDemoPort = 9000

// ContainerLauncher starts a demo container from a built image.
type ContainerLauncher struct {
	runtime  ports.ContainerRuntime
	ports    ports.PortAllocator
	demoPort int
	log      *log.Logger
}

// NewContainerLauncher creates a ContainerLauncher. demoPort is the
// container-side port published on the demo's host port; zero means
// DefaultDemoPort.
func NewContainerLauncher(runtime ports.ContainerRuntime, allocator ports.PortAllocator, demoPort int, logger *log.Logger) *ContainerLauncher {
	if demoPort == 0 {
		demoPort = DefaultDemoPort
	}
	return &ContainerLauncher{
		runtime:  runtime,
		ports:    allocator,
		demoPort: demoPort,
		log:      orDiscard(logger),
	}
}

// Launch runs imageID as a detached, auto-removed container named demoID and
// records the container on demo. The demo gets a host port on its first
// launch only; later launches reuse it.
func (l *ContainerLauncher) Launch(ctx context.Context, demoID, imageID string, demo *domain.Demo) (string, int, error) {
	if demo.Port == 0 {
		port, err := l.ports.Allocate(ctx)
		if err != nil {
			return "", 0, fmt.Errorf("allocate port for demo %s: %w", demoID, err)
		}
		l.log.Info("new port for demo", "demo", demoID, "port", port)
		demo.Port = port
	}

	c, err := l.runtime.Run(ctx, domain.RunSpec{
		ImageID:    imageID,
		Name:       demoID,
		Detach:     true,
		PortMap:    map[string]int{fmt.Sprintf("%d/tcp", l.demoPort): demo.Port},
		AutoRemove: true,
	})
	if err != nil {
		return "", 0, domain.NewConnectionError("run container", err)
	}

	l.log.Info("demo deployed", "demo", demoID, "container", c.ID, "port", demo.Port)
	demo.ContainerID = c.ID
	return c.ID, demo.Port, nil
}
