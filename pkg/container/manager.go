// Package container manages the lifecycle of a compute-job service running
// as a local Docker container: create, start, stop, remove, and status.
//
// The client library itself only needs a reachable host:port; this package
// exists so callers can bring a service up and down without talking to
// Docker themselves.
package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"cwlclient/pkg/apperrors"
)

// DefaultServicePort is the port the service image listens on inside its
// container.
const DefaultServicePort = 29593

// Status of a service container.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// Spec describes a service container to create.
type Spec struct {
	Name         string
	Port         int               // host port to publish the service on
	Image        string            // service image to run
	InternalPort int               // port inside the container (default DefaultServicePort)
	Env          map[string]string // passed at creation only (e.g. compute-resource credentials)
}

// Manager drives a Docker daemon.
type Manager struct {
	client *client.Client
}

// NewManager connects to the Docker daemon using the standard environment
// variables (DOCKER_HOST and friends).
func NewManager() (*Manager, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Manager{client: dockerClient}, nil
}

// Close releases the connection to the daemon.
func (m *Manager) Close() error {
	return m.client.Close()
}

// Exists reports whether a service container with the given name exists,
// running or not.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	c, err := m.find(ctx, name)
	if err != nil {
		return false, err
	}
	return c != nil, nil
}

// Create creates a service container and starts it. The image is pulled if
// it is not available locally. The service's internal port is published on
// 127.0.0.1 at the spec's host port.
func (m *Manager) Create(ctx context.Context, spec Spec) error {
	existing, err := m.find(ctx, spec.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.ServiceAlreadyExists(spec.Name)
	}

	// Pull with a detached context so a caller timeout does not abort a
	// long image download halfway.
	if err := m.pullIfNeeded(context.WithoutCancel(ctx), spec.Image); err != nil {
		return err
	}

	internalPort := spec.InternalPort
	if internalPort <= 0 {
		internalPort = DefaultServicePort
	}
	containerPort := nat.Port(fmt.Sprintf("%d/tcp", internalPort))

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
		Labels: map[string]string{
			"managed-by": "cwlclient",
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: strconv.Itoa(spec.Port)},
			},
		},
	}

	resp, err := m.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		if strings.Contains(err.Error(), "is already in use") {
			return apperrors.ServiceAlreadyExists(spec.Name)
		}
		return fmt.Errorf("creating service container %s: %w", spec.Name, err)
	}

	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// The container was created but cannot run; remove it so a retry
		// with a free port is possible under the same name.
		_ = m.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		if strings.Contains(err.Error(), "port is already allocated") ||
			strings.Contains(err.Error(), "address already in use") {
			return apperrors.PortNotAvailable(spec.Port)
		}
		return fmt.Errorf("starting service container %s: %w", spec.Name, err)
	}

	slog.Info("Created service container", "name", spec.Name, "port", spec.Port, "image", spec.Image)
	return nil
}

// Start starts a stopped service container.
func (m *Manager) Start(ctx context.Context, name string) error {
	c, err := m.mustFind(ctx, name)
	if err != nil {
		return err
	}
	if err := m.client.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting service %s: %w", name, err)
	}
	return nil
}

// Stop stops a running service container. Stopping before host shutdown
// gives the service a clean exit.
func (m *Manager) Stop(ctx context.Context, name string) error {
	c, err := m.mustFind(ctx, name)
	if err != nil {
		return err
	}
	timeout := 10
	if err := m.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stopping service %s: %w", name, err)
	}
	return nil
}

// Remove deletes a service container. The container is stopped first if it
// is still running.
func (m *Manager) Remove(ctx context.Context, name string) error {
	c, err := m.mustFind(ctx, name)
	if err != nil {
		return err
	}
	if err := m.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("removing service %s: %w", name, err)
	}
	slog.Info("Removed service container", "name", name)
	return nil
}

// Status returns whether the service container is running or exited.
func (m *Manager) Status(ctx context.Context, name string) (Status, error) {
	c, err := m.mustFind(ctx, name)
	if err != nil {
		return "", err
	}
	if c.State == "running" {
		return StatusRunning, nil
	}
	return StatusExited, nil
}

func (m *Manager) find(ctx context.Context, name string) (*container.Summary, error) {
	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	for i := range containers {
		for _, n := range containers[i].Names {
			if strings.TrimPrefix(n, "/") == name {
				return &containers[i], nil
			}
		}
	}
	return nil, nil
}

func (m *Manager) mustFind(ctx context.Context, name string) (*container.Summary, error) {
	c, err := m.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.ServiceNotFound(name)
	}
	return c, nil
}

func (m *Manager) pullIfNeeded(ctx context.Context, ref string) error {
	if _, err := m.client.ImageInspect(ctx, ref); err == nil {
		return nil
	}
	slog.Info("Pulling service image", "image", ref)
	reader, err := m.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", ref, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}
