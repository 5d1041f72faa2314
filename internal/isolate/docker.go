package isolate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

var _ Isolate = (*Docker)(nil)

const dockerOpTimeout = 30 * time.Second

// Docker spawns workers inside containers instead of bare processes. The
// profile's isolate args select the image and, optionally, the network the
// worker joins. The worker argv and environment are built exactly as the
// process isolate builds them.
type Docker struct {
	appName string
	image   string
	network string
	client  *client.Client
	logger  *slog.Logger
}

// NewDocker is the docker isolate factory. Args: "image" (required),
// "network" (optional).
func NewDocker(cfg Config, logger *slog.Logger) (Isolate, error) {
	img, _ := cfg.Args["image"].(string)
	if img == "" {
		return nil, fmt.Errorf("docker isolate for %s: image is not configured", cfg.AppName)
	}
	net, _ := cfg.Args["network"].(string)

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Docker{
		appName: cfg.AppName,
		image:   img,
		network: net,
		client:  cli,
		logger:  logger.With("component", "docker-isolate", "app", cfg.AppName),
	}, nil
}

func (d *Docker) Spawn(path string, args map[string]string, env map[string]string) (Handle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dockerOpTimeout)
	defer cancel()

	if err := d.ensureImage(ctx); err != nil {
		return nil, err
	}

	argv := make([]string, 0, 1+2*len(args))
	argv = append(argv, path)
	for k, v := range args {
		argv = append(argv, k, v)
	}

	envp := make([]string, 0, len(env))
	for k, v := range env {
		envp = append(envp, fmt.Sprintf("%s=%s", k, v))
	}

	name := fmt.Sprintf("cocaine-%s-%s", d.appName, uuid.New().String()[:8])

	var netConfig *network.NetworkingConfig
	if d.network != "" {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				d.network: {},
			},
		}
	}

	resp, err := d.client.ContainerCreate(ctx,
		&container.Config{
			Image: d.image,
			Cmd:   argv,
			Env:   envp,
		},
		&container.HostConfig{},
		netConfig,
		nil,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: container create: %v", ErrSpawnFailed, err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		removeCtx, removeCancel := context.WithTimeout(context.Background(), dockerOpTimeout)
		defer removeCancel()
		_ = d.client.ContainerRemove(removeCtx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("%w: container start: %v", ErrSpawnFailed, err)
	}

	d.logger.Info("spawned worker container", "container_id", resp.ID, "name", name)

	return &dockerHandle{id: resp.ID, client: d.client, logger: d.logger}, nil
}

func (d *Docker) ensureImage(ctx context.Context) error {
	_, err := d.client.ImageInspect(ctx, d.image)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", d.image, err)
	}

	d.logger.Info("image not found, pulling", "image", d.image)
	reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImagePullFailed, d.image, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImagePullFailed, d.image, err)
	}
	return nil
}

func (d *Docker) Close() error {
	return d.client.Close()
}

type dockerHandle struct {
	id     string
	client *client.Client
	logger *slog.Logger
}

func (h *dockerHandle) Terminate() {
	ctx, cancel := context.WithTimeout(context.Background(), dockerOpTimeout)
	defer cancel()

	inspect, err := h.client.ContainerInspect(ctx, h.id)
	if err != nil || inspect.State == nil || !inspect.State.Running {
		return
	}

	if err := h.client.ContainerKill(ctx, h.id, "SIGTERM"); err != nil {
		h.logger.Warn("failed to signal worker container", "container_id", h.id, "error", err)
	}
}
