package docker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// DefaultCallTimeout bounds every daemon call except the wait for a
// container to stop.
const DefaultCallTimeout = 30 * time.Second

// containerAPI is the subset of the Docker client used by Adapter.
type containerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
}

// Adapter implements ports.ContainerRuntime using the Docker SDK.
type Adapter struct {
	cli         containerAPI
	callTimeout time.Duration
}

var _ ports.ContainerRuntime = (*Adapter)(nil)

// NewClient creates a Docker client. An empty host uses the environment
// (DOCKER_HOST and friends).
func NewClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// NewAdapter creates a Docker adapter. A non-positive callTimeout falls back
// to DefaultCallTimeout.
func NewAdapter(cli containerAPI, callTimeout time.Duration) *Adapter {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Adapter{cli: cli, callTimeout: callTimeout}
}

// Get inspects a container.
func (a *Adapter) Get(ctx context.Context, id string) (domain.Container, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return domain.Container{}, false, nil
		}
		return domain.Container{}, false, transportError("inspect container "+id, err)
	}
	return toContainer(info), true, nil
}

// Stop stops a container, giving it timeout to exit before it is killed.
func (a *Adapter) Stop(ctx context.Context, c domain.Container, timeout time.Duration) (bool, error) {
	// The daemon only answers once the container is down, so the call
	// may take up to the stop timeout on top of the usual call budget.
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout+timeout)
	defer cancel()

	// Docker takes whole seconds; a partial second still gets a graceful stop.
	secs := int(math.Ceil(timeout.Seconds()))
	if err := a.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &secs}); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, transportError("stop container "+c.ID, err)
	}
	return true, nil
}

// Remove removes a stopped container. If the daemon is already removing it
// (auto-remove after stop), Remove waits for that removal to finish so the
// container name is free once it returns.
func (a *Adapter) Remove(ctx context.Context, c domain.Container) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	err := a.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{})
	switch {
	case err == nil:
		return true, nil
	case errdefs.IsNotFound(err):
		return false, nil
	case errdefs.IsConflict(err) && strings.Contains(err.Error(), "already in progress"):
		return a.waitRemoved(ctx, c.ID)
	default:
		return false, transportError("remove container "+c.ID, err)
	}
}

func (a *Adapter) waitRemoved(ctx context.Context, id string) (bool, error) {
	respCh, errCh := a.cli.ContainerWait(ctx, id, container.WaitConditionRemoved)
	select {
	case <-respCh:
		return false, nil
	case err := <-errCh:
		if err == nil || errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, transportError("wait for removal of "+id, err)
	}
}

// Run creates and starts a container.
func (a *Adapter) Run(ctx context.Context, spec domain.RunSpec) (domain.Container, error) {
	exposed, bindings, err := portBindings(spec.PortMap)
	if err != nil {
		return domain.Container{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.ImageID,
		ExposedPorts: exposed,
	}, &container.HostConfig{
		PortBindings: bindings,
		AutoRemove:   spec.AutoRemove,
	}, nil, nil, spec.Name)
	if err != nil {
		return domain.Container{}, transportError("create container", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// A created container is not auto-removed until it has run; drop it
		// so the name can be reused on the next attempt.
		if rmErr := a.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil && !errdefs.IsNotFound(rmErr) {
			err = errors.Join(err, rmErr)
		}
		return domain.Container{}, transportError("start container "+resp.ID, err)
	}

	c := domain.Container{ID: resp.ID, Name: spec.Name, Image: spec.ImageID, Status: "running"}
	if spec.Detach {
		return c, nil
	}

	respCh, errCh := a.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case <-respCh:
		c.Status = "exited"
		return c, nil
	case err := <-errCh:
		return domain.Container{}, transportError("wait for container "+resp.ID, err)
	}
}

func toContainer(info types.ContainerJSON) domain.Container {
	if info.ContainerJSONBase == nil {
		return domain.Container{}
	}
	c := domain.Container{
		ID:    info.ID,
		Name:  strings.TrimPrefix(info.Name, "/"),
		Image: info.Image,
	}
	if info.State != nil {
		c.Status = info.State.Status
	}
	return c
}

func portBindings(portMap map[string]int) (nat.PortSet, nat.PortMap, error) {
	exposed := make(nat.PortSet, len(portMap))
	bindings := make(nat.PortMap, len(portMap))
	for containerPort, hostPort := range portMap {
		proto, port := nat.SplitProtoPort(containerPort)
		p, err := nat.NewPort(proto, port)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %q: %w", containerPort, err)
		}
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
	}
	return exposed, bindings, nil
}

// transportError classifies a daemon failure, including call timeouts, as a
// connection error.
func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("call timed out: %w", err)
	}
	return &domain.ConnectionError{Op: op, Err: err}
}
