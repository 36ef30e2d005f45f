package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/core/compose"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/core/deployment"
)

// =============================================================================
// Orchestrator - Stack Lifecycle
// =============================================================================

// Orchestrator runs the sensor-map stack lifecycle against a Docker client.
// projectDir anchors relative paths from the compose file (build contexts,
// bind mount sources).
type Orchestrator struct {
	docker     Client
	logger     *slog.Logger
	projectDir string
}

// NewOrchestrator creates an orchestrator rooted at projectDir.
func NewOrchestrator(docker Client, logger *slog.Logger, projectDir string) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if projectDir == "" {
		projectDir = "."
	}
	return &Orchestrator{
		docker:     docker,
		logger:     logger,
		projectDir: projectDir,
	}
}

// =============================================================================
// Build
// =============================================================================

// BuildImages builds the image of every service with a build section.
// Image-only services must already be present locally: the deployer never
// pulls. Build output is streamed to output. The first failing build aborts.
func (o *Orchestrator) BuildImages(ctx context.Context, stack *compose.Stack, output io.Writer) error {
	for _, svc := range stack.Services {
		if svc.Build == nil {
			exists, err := o.docker.ImageExists(svc.Image)
			if err != nil {
				return fmt.Errorf("check image for service %s: %w", svc.Name, err)
			}
			if !exists {
				return NewDockerError("BuildImages", "image", svc.Image,
					"image not present locally and service has no build section", ErrImageNotFound)
			}
			continue
		}

		tag := svc.Image
		if tag == "" {
			tag = deployment.ImageTag(svc.Name)
		}

		contextDir := svc.Build.Context
		if !filepath.IsAbs(contextDir) {
			contextDir = filepath.Join(o.projectDir, contextDir)
		}

		o.logger.Info("building image", "service", svc.Name, "tag", tag, "context", contextDir)

		if err := o.docker.BuildImage(BuildSpec{
			ContextDir: contextDir,
			Dockerfile: svc.Build.Dockerfile,
			Tag:        tag,
		}, output); err != nil {
			return fmt.Errorf("build image for service %s: %w", svc.Name, err)
		}

		o.logger.Info("image built", "service", svc.Name, "tag", tag)
	}
	return nil
}

// =============================================================================
// Start
// =============================================================================

// StartStack creates and starts containers for every service in the stack.
// Existing managed containers are reused where possible: running containers
// are left alone, stopped ones restarted, dead ones recreated. runID labels
// the containers so a deploy run can be traced back in the history store.
func (o *Orchestrator) StartStack(ctx context.Context, stack *compose.Stack, runID string) ([]ContainerInfo, error) {
	if err := o.ensureNetwork(); err != nil {
		return nil, err
	}
	networkName := deployment.NetworkName()

	existing, err := o.managedContainers(true)
	if err != nil {
		return nil, err
	}
	existingByService := make(map[string]ContainerInfo)
	for _, c := range existing {
		if svc, ok := c.Labels[LabelService]; ok {
			existingByService[svc] = c
		}
	}

	var started []ContainerInfo
	for _, svc := range stack.Services {
		state := deployment.StateAbsent
		var existingID string
		if c, found := existingByService[svc.Name]; found {
			state = deployment.ContainerState(c.State)
			existingID = c.ID
		}

		containerID := existingID
		action := deployment.DetermineStartAction(state)

		switch action {
		case deployment.ActionRecreate:
			o.logger.Info("recreating container", "service", svc.Name, "state", state)
			if err := o.docker.RemoveContainer(existingID, RemoveOptions{Force: true}); err != nil {
				return nil, fmt.Errorf("remove dead container for %s: %w", svc.Name, err)
			}
			fallthrough

		case deployment.ActionCreate:
			spec, err := o.containerSpec(svc, networkName, runID)
			if err != nil {
				return nil, err
			}
			containerID, err = o.docker.CreateContainer(spec)
			if err != nil {
				return nil, fmt.Errorf("create container for %s: %w", svc.Name, err)
			}
			o.logger.Debug("created container", "service", svc.Name, "container_id", shortID(containerID))
			if err := o.docker.StartContainer(containerID); err != nil {
				return nil, fmt.Errorf("start container for %s: %w", svc.Name, err)
			}

		case deployment.ActionStart:
			if err := o.docker.StartContainer(containerID); err != nil {
				return nil, fmt.Errorf("start container for %s: %w", svc.Name, err)
			}
			o.logger.Debug("started existing container", "service", svc.Name, "container_id", shortID(containerID))

		case deployment.ActionNone:
			o.logger.Debug("container already running", "service", svc.Name, "container_id", shortID(containerID))
		}

		info, err := o.docker.InspectContainer(containerID)
		if err != nil {
			return nil, fmt.Errorf("inspect container for %s: %w", svc.Name, err)
		}
		started = append(started, *info)
	}

	o.logger.Info("stack started", "containers", len(started), "run_id", runID)
	return started, nil
}

// containerSpec translates a compose service into a container spec.
func (o *Orchestrator) containerSpec(svc compose.Service, networkName, runID string) (ContainerSpec, error) {
	image := svc.Image
	if image == "" {
		image = deployment.ImageTag(svc.Name)
	}

	spec := ContainerSpec{
		Name:    deployment.ContainerName(svc.Name),
		Image:   image,
		Command: svc.Command,
		Env:     svc.Environment,
		Labels: map[string]string{
			LabelManaged: "true",
			LabelService: svc.Name,
			LabelRun:     runID,
		},
		Networks: []string{networkName},
	}
	for k, v := range svc.Labels {
		spec.Labels[k] = v
	}

	for _, p := range svc.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, m := range svc.Mounts {
		source := m.Source
		if !filepath.IsAbs(source) {
			abs, err := filepath.Abs(filepath.Join(o.projectDir, source))
			if err != nil {
				return ContainerSpec{}, fmt.Errorf("resolve mount source %s: %w", m.Source, err)
			}
			source = abs
		}
		spec.Mounts = append(spec.Mounts, BindMount{
			Source:   source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	if svc.Restart != "" {
		spec.RestartPolicy = RestartPolicy{Name: string(svc.Restart)}
	}

	if svc.HealthCheck != nil {
		hc := &HealthCheck{
			Test:    svc.HealthCheck.Test,
			Retries: svc.HealthCheck.Retries,
		}
		hc.Interval, _ = time.ParseDuration(svc.HealthCheck.Interval)
		hc.Timeout, _ = time.ParseDuration(svc.HealthCheck.Timeout)
		hc.StartPeriod, _ = time.ParseDuration(svc.HealthCheck.StartPeriod)
		spec.HealthCheck = hc
	}

	return spec, nil
}

// ensureNetwork creates the stack network if it does not exist yet.
func (o *Orchestrator) ensureNetwork() error {
	_, err := o.docker.CreateNetwork(NetworkSpec{
		Name:   deployment.NetworkName(),
		Labels: map[string]string{LabelManaged: "true"},
	})
	if err != nil {
		if errors.Is(err, ErrNetworkAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create network: %w", err)
	}
	return nil
}

// =============================================================================
// Wait Healthy
// =============================================================================

// WaitHealthy polls managed containers until the stack reports healthy or
// the timeout expires. Containers without a healthcheck count as healthy
// once running.
func (o *Orchestrator) WaitHealthy(ctx context.Context, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	o.logger.Info("waiting for stack to become healthy", "timeout", timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			health, err := o.stackHealth()
			if err != nil {
				return err
			}
			switch health {
			case deployment.HealthHealthy:
				o.logger.Info("stack healthy")
				return nil
			case deployment.HealthUnhealthy:
				return fmt.Errorf("stack reported unhealthy: %w", ErrHealthTimeout)
			}
			if time.Now().After(deadline) {
				return ErrHealthTimeout
			}
			o.logger.Debug("stack not yet healthy", "health", health)
		}
	}
}

func (o *Orchestrator) stackHealth() (deployment.HealthStatus, error) {
	containers, err := o.managedContainers(true)
	if err != nil {
		return deployment.HealthUnknown, err
	}

	var health []deployment.ContainerHealth
	for _, c := range containers {
		info, err := o.docker.InspectContainer(c.ID)
		if err != nil {
			return deployment.HealthUnknown, err
		}
		health = append(health, deployment.ContainerHealth{
			Service: c.Labels[LabelService],
			State:   deployment.ContainerState(info.State),
			Health:  info.Health,
		})
	}

	return deployment.AggregateHealth(health), nil
}

// =============================================================================
// Stop / Restart / Status
// =============================================================================

// StopStack stops and removes every managed container.
func (o *Orchestrator) StopStack(ctx context.Context, stopTimeout time.Duration) error {
	containers, err := o.managedContainers(true)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		o.logger.Info("no managed containers to stop")
		return nil
	}

	for _, c := range containers {
		o.logger.Info("stopping container", "name", c.Name, "container_id", shortID(c.ID))
		if err := o.docker.StopContainer(c.ID, &stopTimeout); err != nil {
			if !errors.Is(err, ErrContainerNotRunning) {
				return fmt.Errorf("stop container %s: %w", c.Name, err)
			}
		}
		if err := o.docker.RemoveContainer(c.ID, RemoveOptions{}); err != nil {
			return fmt.Errorf("remove container %s: %w", c.Name, err)
		}
	}

	o.logger.Info("stack stopped", "containers", len(containers))
	return nil
}

// RestartStack stops running managed containers and brings the stack back up
// from the given compose stack. Images are not rebuilt.
func (o *Orchestrator) RestartStack(ctx context.Context, stack *compose.Stack, runID string, stopTimeout time.Duration) ([]ContainerInfo, error) {
	containers, err := o.managedContainers(false)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		o.logger.Info("stopping container for restart", "name", c.Name)
		if err := o.docker.StopContainer(c.ID, &stopTimeout); err != nil {
			return nil, fmt.Errorf("stop container %s: %w", c.Name, err)
		}
	}

	return o.StartStack(ctx, stack, runID)
}

// Status returns the current state of all managed containers and the
// aggregated stack health.
func (o *Orchestrator) Status(ctx context.Context) ([]ContainerInfo, deployment.HealthStatus, error) {
	containers, err := o.managedContainers(true)
	if err != nil {
		return nil, deployment.HealthUnknown, err
	}

	var infos []ContainerInfo
	var health []deployment.ContainerHealth
	for _, c := range containers {
		info, err := o.docker.InspectContainer(c.ID)
		if err != nil {
			return nil, deployment.HealthUnknown, err
		}
		infos = append(infos, *info)
		health = append(health, deployment.ContainerHealth{
			Service: c.Labels[LabelService],
			State:   deployment.ContainerState(info.State),
			Health:  info.Health,
		})
	}

	return infos, deployment.AggregateHealth(health), nil
}

// ServiceLogs returns a log stream for the named service's container.
func (o *Orchestrator) ServiceLogs(ctx context.Context, serviceName string, opts LogOptions) (io.ReadCloser, error) {
	containers, err := o.managedContainers(true)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		if c.Labels[LabelService] == serviceName {
			return o.docker.ContainerLogs(c.ID, opts)
		}
	}
	return nil, NewDockerError("ServiceLogs", "container", serviceName, "no managed container for service", ErrContainerNotFound)
}

// managedContainers lists containers carrying the managed label.
func (o *Orchestrator) managedContainers(includeStopped bool) ([]ContainerInfo, error) {
	return o.docker.ListContainers(ListOptions{
		All: includeStopped,
		Filters: map[string]string{
			"label": LabelManaged + "=true",
		},
	})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
