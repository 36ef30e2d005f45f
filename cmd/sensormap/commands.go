package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/core/artifact"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/core/compose"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/core/deployment"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/observability"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/shell/api"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/shell/docker"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/shell/store"
	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/shell/watcher"
)

// App wires configuration into the lifecycle commands.
type App struct {
	cfg    *Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer

	// connect overrides Docker client construction in tests. Nil means
	// a real daemon connection.
	connect func() (docker.Client, error)
}

// =============================================================================
// Shared Wiring
// =============================================================================

// loadStack reads and parses the compose file. The returned project
// directory anchors relative paths from the file.
func (a *App) loadStack() (*compose.Stack, string, error) {
	content, err := os.ReadFile(a.cfg.ComposeFile)
	if err != nil {
		return nil, "", fmt.Errorf("read compose file %s: %w", a.cfg.ComposeFile, err)
	}

	stack, err := compose.Parse(string(content))
	if err != nil {
		return nil, "", fmt.Errorf("parse compose file %s: %w", a.cfg.ComposeFile, err)
	}

	projectDir := filepath.Dir(a.cfg.ComposeFile)
	return stack, projectDir, nil
}

// dockerClient returns a connected Docker client, honoring the test hook.
func (a *App) dockerClient() (docker.Client, error) {
	if a.connect != nil {
		return a.connect()
	}
	return a.connectDocker()
}

// connectDocker creates a Docker client and verifies the daemon answers.
func (a *App) connectDocker() (docker.Client, error) {
	cli, err := docker.NewDockerClient(a.cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(); err != nil {
		cli.Close()
		return nil, err
	}
	return cli, nil
}

// openHistory opens the deploy-history store. History is advisory: a
// failure is logged and a nil store returned.
func (a *App) openHistory() store.Store {
	s, err := store.NewSQLiteStore(a.cfg.Store.DSN)
	if err != nil {
		a.logger.Warn("deploy history unavailable", "dsn", a.cfg.Store.DSN, "error", err)
		return nil
	}
	return s
}

// beginRun records the start of a lifecycle command in the history store.
func beginRun(history store.Store, command store.RunCommand, imageTag string, logger *slog.Logger) string {
	runID := uuid.NewString()
	if history == nil {
		return runID
	}
	err := history.CreateRun(context.Background(), &store.Run{
		ID:        runID,
		Command:   command,
		ImageTag:  imageTag,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to record run", "run_id", runID, "error", err)
	}
	return runID
}

// finishRun records the outcome of a lifecycle command.
func finishRun(history store.Store, runID string, runErr error, logger *slog.Logger) {
	if history == nil {
		return
	}
	status := store.StatusSucceeded
	errMsg := ""
	if runErr != nil {
		status = store.StatusFailed
		errMsg = runErr.Error()
	}
	if err := history.FinishRun(context.Background(), runID, status, errMsg, time.Now().UTC()); err != nil {
		logger.Warn("failed to record run outcome", "run_id", runID, "error", err)
	}
}

// =============================================================================
// deploy
// =============================================================================

// Deploy runs the full deploy sequence: artifact gate, image build, start,
// health wait, crib sheet.
func (a *App) Deploy(args []string) int {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	noWait := fs.Bool("no-wait", false, "Do not wait for the stack to become healthy")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	// The artifact gate runs before anything touches Docker: a missing
	// input file must surface as exactly that, not as a daemon error.
	checker := artifact.NewChecker(nil)
	results, err := checker.CheckAll(artifact.Required(a.cfg.DataDir))
	for _, res := range results {
		if res.Artifact.Optional && !res.OK() {
			a.logger.Warn("optional artifact missing, service will run without it",
				"kind", res.Artifact.Kind, "path", res.Artifact.Path)
		}
	}
	if err != nil {
		fmt.Fprintf(a.errOut, "deploy aborted: %v\n", err)
		fmt.Fprintln(a.errOut, "run the data pipeline first to produce the interim files")
		return ExitPreconditionFailed
	}
	a.logger.Info("data artifacts present", "dir", a.cfg.DataDir)

	stack, projectDir, err := a.loadStack()
	if err != nil {
		fmt.Fprintf(a.errOut, "deploy aborted: %v\n", err)
		return ExitConfigError
	}

	port, err := stack.PrimaryPort()
	if err != nil {
		fmt.Fprintf(a.errOut, "deploy aborted: %v\n", err)
		return ExitConfigError
	}

	cli, err := a.dockerClient()
	if err != nil {
		fmt.Fprintf(a.errOut, "deploy aborted: %v\n", err)
		return ExitDockerError
	}
	defer cli.Close()

	history := a.openHistory()
	if history != nil {
		defer history.Close()
	}

	imageTag := ""
	if svc, ok := stack.PrimaryService(); ok {
		imageTag = svc.Image
	}
	runID := beginRun(history, store.CommandDeploy, imageTag, a.logger)

	orch := docker.NewOrchestrator(cli, a.logger, projectDir)
	plan := deployment.NewDeployPlan(*noWait)

	for _, step := range plan.Steps {
		var stepErr error
		switch step {
		case deployment.StepCheckArtifacts:
			// Already passed above.
		case deployment.StepBuildImage:
			fmt.Fprintln(a.out, "Building image...")
			stepErr = orch.BuildImages(context.Background(), stack, a.out)
		case deployment.StepStartService:
			fmt.Fprintln(a.out, "Starting service...")
			_, stepErr = orch.StartStack(context.Background(), stack, runID)
		case deployment.StepWaitHealthy:
			stepErr = orch.WaitHealthy(context.Background(),
				a.cfg.Service.HealthWaitTimeout, a.cfg.Service.HealthPollInterval)
		}
		if stepErr != nil {
			finishRun(history, runID, stepErr, a.logger)
			fmt.Fprintf(a.errOut, "deploy failed at %s: %v\n", step, stepErr)
			return ExitDockerError
		}
	}

	finishRun(history, runID, nil, a.logger)
	a.printCribSheet(port)
	return ExitSuccess
}

// printCribSheet prints the service address and follow-up commands.
func (a *App) printCribSheet(port int) {
	url := deployment.ServiceURL(a.cfg.Service.Host, port, a.cfg.Service.BasePath)
	healthURL := deployment.HealthURL(a.cfg.Service.Host, port, a.cfg.Service.BasePath)

	fmt.Fprintf(a.out, "\nSensor map is running at %s\n", url)
	fmt.Fprintf(a.out, "Health check endpoint:   %s\n", healthURL)
	fmt.Fprintln(a.out, "\nUseful commands:")
	fmt.Fprintln(a.out, "  sensormap status     show container state and deploy history")
	fmt.Fprintln(a.out, "  sensormap logs -f    follow service logs")
	fmt.Fprintln(a.out, "  sensormap restart    restart the service")
	fmt.Fprintln(a.out, "  sensormap stop       stop the service")
}

// =============================================================================
// status
// =============================================================================

// Status shows container state and recent deploy history.
func (a *App) Status(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	historyLimit := fs.Int("history", 5, "Number of history entries to show")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	cli, err := a.dockerClient()
	if err != nil {
		fmt.Fprintf(a.errOut, "status failed: %v\n", err)
		return ExitDockerError
	}
	defer cli.Close()

	orch := docker.NewOrchestrator(cli, a.logger, ".")
	containers, health, err := orch.Status(context.Background())
	if err != nil {
		fmt.Fprintf(a.errOut, "status failed: %v\n", err)
		return ExitDockerError
	}

	fmt.Fprintf(a.out, "Stack health: %s\n", health)
	if len(containers) == 0 {
		fmt.Fprintln(a.out, "No managed containers. Run `sensormap deploy` first.")
	}
	for _, c := range containers {
		line := fmt.Sprintf("  %-30s %-10s", c.Name, c.State)
		if c.Health != "" {
			line += " (" + c.Health + ")"
		}
		fmt.Fprintln(a.out, line)
	}

	history := a.openHistory()
	if history == nil {
		return ExitSuccess
	}
	defer history.Close()

	runs, err := history.ListRecentRuns(context.Background(), *historyLimit)
	if err != nil {
		a.logger.Warn("failed to read deploy history", "error", err)
		return ExitSuccess
	}
	if len(runs) > 0 {
		fmt.Fprintln(a.out, "\nRecent deploy history:")
		for _, run := range runs {
			line := fmt.Sprintf("  %s  %-13s %-9s", run.StartedAt.Format(time.RFC3339), run.Command, run.Status)
			if run.Error != "" {
				line += "  " + run.Error
			}
			fmt.Fprintln(a.out, line)
		}
	}

	return ExitSuccess
}

// =============================================================================
// logs
// =============================================================================

// Logs streams the primary service's container logs.
func (a *App) Logs(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	follow := fs.Bool("f", false, "Follow log output")
	tail := fs.String("tail", "100", "Number of lines to show from the end")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	stack, projectDir, err := a.loadStack()
	if err != nil {
		fmt.Fprintf(a.errOut, "logs failed: %v\n", err)
		return ExitConfigError
	}

	serviceName := ""
	if svc, ok := stack.PrimaryService(); ok {
		serviceName = svc.Name
	} else if len(stack.Services) > 0 {
		serviceName = stack.Services[0].Name
	}

	cli, err := a.dockerClient()
	if err != nil {
		fmt.Fprintf(a.errOut, "logs failed: %v\n", err)
		return ExitDockerError
	}
	defer cli.Close()

	orch := docker.NewOrchestrator(cli, a.logger, projectDir)
	reader, err := orch.ServiceLogs(context.Background(), serviceName, docker.LogOptions{
		Follow: *follow,
		Tail:   *tail,
	})
	if err != nil {
		fmt.Fprintf(a.errOut, "logs failed: %v\n", err)
		return ExitDockerError
	}
	defer reader.Close()

	// Containers without a TTY multiplex stdout/stderr into one stream.
	if _, err := stdcopy.StdCopy(a.out, a.errOut, reader); err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(a.errOut, "logs failed: %v\n", err)
		return ExitDockerError
	}

	return ExitSuccess
}

// =============================================================================
// stop
// =============================================================================

// Stop stops and removes the service containers.
func (a *App) Stop(args []string) int {
	cli, err := a.dockerClient()
	if err != nil {
		fmt.Fprintf(a.errOut, "stop failed: %v\n", err)
		return ExitDockerError
	}
	defer cli.Close()

	history := a.openHistory()
	if history != nil {
		defer history.Close()
	}
	runID := beginRun(history, store.CommandStop, "", a.logger)

	orch := docker.NewOrchestrator(cli, a.logger, ".")
	if err := orch.StopStack(context.Background(), a.cfg.Service.StopTimeout); err != nil {
		finishRun(history, runID, err, a.logger)
		fmt.Fprintf(a.errOut, "stop failed: %v\n", err)
		return ExitDockerError
	}

	finishRun(history, runID, nil, a.logger)
	fmt.Fprintln(a.out, "Sensor map stopped.")
	return ExitSuccess
}

// =============================================================================
// restart
// =============================================================================

// Restart stops and restarts the service without rebuilding the image.
func (a *App) Restart(args []string) int {
	stack, projectDir, err := a.loadStack()
	if err != nil {
		fmt.Fprintf(a.errOut, "restart failed: %v\n", err)
		return ExitConfigError
	}

	port, err := stack.PrimaryPort()
	if err != nil {
		fmt.Fprintf(a.errOut, "restart failed: %v\n", err)
		return ExitConfigError
	}

	cli, err := a.dockerClient()
	if err != nil {
		fmt.Fprintf(a.errOut, "restart failed: %v\n", err)
		return ExitDockerError
	}
	defer cli.Close()

	history := a.openHistory()
	if history != nil {
		defer history.Close()
	}
	runID := beginRun(history, store.CommandRestart, "", a.logger)

	orch := docker.NewOrchestrator(cli, a.logger, projectDir)
	if _, err := orch.RestartStack(context.Background(), stack, runID, a.cfg.Service.StopTimeout); err != nil {
		finishRun(history, runID, err, a.logger)
		fmt.Fprintf(a.errOut, "restart failed: %v\n", err)
		return ExitDockerError
	}

	if a.cfg.Service.HealthWaitTimeout > 0 {
		if err := orch.WaitHealthy(context.Background(),
			a.cfg.Service.HealthWaitTimeout, a.cfg.Service.HealthPollInterval); err != nil {
			finishRun(history, runID, err, a.logger)
			fmt.Fprintf(a.errOut, "restart failed: %v\n", err)
			return ExitDockerError
		}
	}

	finishRun(history, runID, nil, a.logger)
	a.printCribSheet(port)
	return ExitSuccess
}

// =============================================================================
// watch
// =============================================================================

// Watch runs the recurring health check with auto-restart and serves the
// admin endpoints until interrupted.
func (a *App) Watch(args []string) int {
	stack, projectDir, err := a.loadStack()
	if err != nil {
		fmt.Fprintf(a.errOut, "watch failed: %v\n", err)
		return ExitConfigError
	}

	port, err := stack.PrimaryPort()
	if err != nil {
		fmt.Fprintf(a.errOut, "watch failed: %v\n", err)
		return ExitConfigError
	}

	cli, err := a.dockerClient()
	if err != nil {
		fmt.Fprintf(a.errOut, "watch failed: %v\n", err)
		return ExitDockerError
	}
	defer cli.Close()

	history := a.openHistory()
	if history != nil {
		defer history.Close()
	}

	orch := docker.NewOrchestrator(cli, a.logger, projectDir)
	healthURL := deployment.HealthURL(a.cfg.Service.Host, port, a.cfg.Service.BasePath)

	metrics := observability.NewMetrics()
	prober := watcher.NewHTTPProber(healthURL, a.cfg.Watch.ProbeTimeout)
	restarter := &stackRestarter{
		orch:        orch,
		stack:       stack,
		history:     history,
		stopTimeout: a.cfg.Service.StopTimeout,
		logger:      a.logger,
	}

	w := watcher.New(prober, restarter, nil, watcher.Config{
		Interval:         a.cfg.Watch.Interval,
		ProbeTimeout:     a.cfg.Watch.ProbeTimeout,
		FailureThreshold: a.cfg.Watch.FailureThreshold,
	}, metrics, a.logger)

	srv := api.NewServer(a.cfg.Watch.AdminAddr, &serviceStatus{orch: orch, watcher: w}, a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.Start()
	defer w.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	a.logger.Info("watching service", "health_url", healthURL, "admin_addr", a.cfg.Watch.AdminAddr)

	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("admin server shutdown failed", "error", err)
		}
		return ExitSuccess
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server failed", "error", err)
			return ExitWatchError
		}
		return ExitSuccess
	}
}

// stackRestarter restarts the stack on behalf of the watcher and records
// the restart in the history store.
type stackRestarter struct {
	orch        *docker.Orchestrator
	stack       *compose.Stack
	history     store.Store
	stopTimeout time.Duration
	logger      *slog.Logger
}

func (r *stackRestarter) Restart(ctx context.Context) error {
	runID := beginRun(r.history, store.CommandWatchRestart, "", r.logger)
	_, err := r.orch.RestartStack(ctx, r.stack, runID, r.stopTimeout)
	finishRun(r.history, runID, err, r.logger)
	return err
}

// serviceStatus combines container state and watcher state for /status.
type serviceStatus struct {
	orch    *docker.Orchestrator
	watcher *watcher.Watcher
}

func (s *serviceStatus) ServiceStatus(ctx context.Context) (any, error) {
	containers, health, err := s.orch.Status(ctx)
	if err != nil {
		return nil, err
	}

	type containerStatus struct {
		Name   string `json:"name"`
		State  string `json:"state"`
		Health string `json:"health,omitempty"`
	}

	out := struct {
		Health              string            `json:"health"`
		Containers          []containerStatus `json:"containers"`
		LastProbeAt         time.Time         `json:"last_probe_at"`
		LastProbeError      string            `json:"last_probe_error,omitempty"`
		ConsecutiveFailures int               `json:"consecutive_failures"`
		RestartsTriggered   int               `json:"restarts_triggered"`
	}{
		Health: string(health),
	}

	for _, c := range containers {
		out.Containers = append(out.Containers, containerStatus{
			Name:   c.Name,
			State:  c.State,
			Health: c.Health,
		})
	}

	snap := s.watcher.Snapshot()
	out.LastProbeAt = snap.LastProbeAt
	out.LastProbeError = snap.LastProbeError
	out.ConsecutiveFailures = snap.ConsecutiveFailures
	out.RestartsTriggered = snap.RestartsTriggered

	return out, nil
}
