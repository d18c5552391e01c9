package container

import (
	"context"

	"cwlclient/pkg/client"
)

// ServiceRef is a persistable reference to a container-managed service:
// the container name plus the published host port. Everything else can be
// recovered from the Docker daemon and the service itself.
type ServiceRef struct {
	Name string `json:"name"`
	Port int    `json:"port"`
}

// Environment keys the service image reads its compute-resource credentials
// from. They are set at container creation and never sent over the job API.
const (
	envUsername = "COMPUTE_RESOURCE_USERNAME"
	envPassword = "COMPUTE_RESOURCE_PASSWORD"
)

// CreateService creates a new service container for the given user and
// returns a client handle bound to it. The image is the service type to
// launch. The service may need a moment to accept requests after this
// returns.
func (m *Manager) CreateService(ctx context.Context, name string, port int, img, userName, password string) (*client.Service, error) {
	env := map[string]string{}
	if userName != "" {
		env[envUsername] = userName
	}
	if password != "" {
		env[envPassword] = password
	}

	if err := m.Create(ctx, Spec{Name: name, Port: port, Image: img, Env: env}); err != nil {
		return nil, err
	}
	return client.NewService("http://localhost", port), nil
}

// GetService returns a client handle for an existing service container.
func (m *Manager) GetService(ctx context.Context, name string, port int) (*client.Service, error) {
	if _, err := m.mustFind(ctx, name); err != nil {
		return nil, err
	}
	return client.NewService("http://localhost", port), nil
}

// ServiceFromRef reconstructs a client handle from a persisted reference.
func (m *Manager) ServiceFromRef(ctx context.Context, ref ServiceRef) (*client.Service, error) {
	return m.GetService(ctx, ref.Name, ref.Port)
}

// IsRunning reports whether the named service container is running.
func (m *Manager) IsRunning(ctx context.Context, name string) (bool, error) {
	status, err := m.Status(ctx, name)
	if err != nil {
		return false, err
	}
	return status == StatusRunning, nil
}
