package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xenvman/pkg/env"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
)

// StateMissing is reported for containers the daemon does not know
const StateMissing = "missing"

// DockerAPI is the part of the Docker client the inspector uses
type DockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Status is the local Docker view of one environment container
type Status struct {
	Template  string            `json:"template"`
	Index     int               `json:"index"`
	Container string            `json:"container"`
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	State     string            `json:"state"`
	Ports     map[string]string `json:"ports,omitempty"`
	Started   *time.Time        `json:"started,omitempty"`
}

// Inspector looks environment containers up on a Docker daemon. It only
// reads; container lifecycles stay with xenvman.
type Inspector struct {
	api    DockerAPI
	closer func() error
	logger *logrus.Logger
}

// NewInspector connects to the daemon configured by the DOCKER_* variables
func NewInspector(logger *logrus.Logger) (*Inspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Inspector{
		api:    cli,
		closer: cli.Close,
		logger: logger,
	}, nil
}

// NewInspectorWithAPI creates an inspector on top of an existing client
func NewInspectorWithAPI(api DockerAPI, logger *logrus.Logger) *Inspector {
	return &Inspector{api: api, logger: logger}
}

// Close releases the docker client
func (i *Inspector) Close() error {
	if i.closer == nil {
		return nil
	}
	return i.closer()
}

// Inspect returns the status of one container
func (i *Inspector) Inspect(ctx context.Context, ref env.ContainerRef) (*Status, error) {
	status := &Status{
		Template:  ref.Template,
		Index:     ref.Index,
		Container: ref.Container,
		ID:        ref.Data.ID,
	}

	inspect, err := i.api.ContainerInspect(ctx, ref.Data.ID)
	if err != nil {
		if client.IsErrNotFound(err) {
			i.logger.WithField("container_id", ref.Data.ID).Debug("Container not found on daemon")
			status.State = StateMissing
			return status, nil
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", ref.Data.ID, err)
	}

	if inspect.ContainerJSONBase != nil {
		status.Name = strings.TrimPrefix(inspect.Name, "/")
		if inspect.State != nil {
			status.State = inspect.State.Status
			if started, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil && !started.IsZero() {
				status.Started = &started
			}
		}
	}

	if inspect.Config != nil {
		status.Image = inspect.Config.Image
	}

	if inspect.NetworkSettings != nil {
		status.Ports = publishedPorts(inspect.NetworkSettings.Ports)
	}

	return status, nil
}

// InspectEnv inspects every container of an environment in address order
func (i *Inspector) InspectEnv(ctx context.Context, out *env.OutputEnv) ([]*Status, error) {
	refs := out.Containers()
	result := make([]*Status, 0, len(refs))

	for _, ref := range refs {
		status, err := i.Inspect(ctx, ref)
		if err != nil {
			return nil, err
		}
		result = append(result, status)
	}

	i.logger.WithFields(logrus.Fields{
		"env_id":     out.ID,
		"containers": len(result),
	}).Debug("Environment inspected")

	return result, nil
}

// publishedPorts maps "port/proto" to the first bound host port
func publishedPorts(portMap nat.PortMap) map[string]string {
	ports := make(map[string]string)
	for port, bindings := range portMap {
		if len(bindings) > 0 && bindings[0].HostPort != "" {
			ports[string(port)] = bindings[0].HostPort
		}
	}
	return ports
}
