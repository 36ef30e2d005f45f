package deployment

// =============================================================================
// Deploy Step Planning
// =============================================================================

// Step is one stage of a deployment run. Steps execute strictly in order and
// the first failing step aborts the run.
type Step string

const (
	StepCheckArtifacts Step = "check-artifacts"
	StepBuildImage     Step = "build-image"
	StepStartService   Step = "start-service"
	StepWaitHealthy    Step = "wait-healthy"
)

// DeployPlan is the ordered sequence of steps for a deployment run.
type DeployPlan struct {
	Steps []Step
}

// NewDeployPlan returns the standard deploy sequence. When skipHealthWait is
// set the plan stops after starting the service (the container's own
// healthcheck still runs inside Docker).
func NewDeployPlan(skipHealthWait bool) DeployPlan {
	steps := []Step{
		StepCheckArtifacts,
		StepBuildImage,
		StepStartService,
	}
	if !skipHealthWait {
		steps = append(steps, StepWaitHealthy)
	}
	return DeployPlan{Steps: steps}
}

// =============================================================================
// Restart Path Planning
// =============================================================================

// ContainerState is the observed state of a managed container, as reported
// by the Docker daemon.
type ContainerState string

const (
	StateAbsent     ContainerState = "absent"
	StateCreated    ContainerState = "created"
	StateRunning    ContainerState = "running"
	StateRestarting ContainerState = "restarting"
	StateExited     ContainerState = "exited"
	StateDead       ContainerState = "dead"
)

// StartAction describes what the orchestrator must do with an existing
// container before the service is up.
type StartAction string

const (
	// ActionCreate means no usable container exists; create and start one.
	ActionCreate StartAction = "create"
	// ActionStart means a stopped container can be started as-is.
	ActionStart StartAction = "start"
	// ActionNone means the container is already running.
	ActionNone StartAction = "none"
	// ActionRecreate means the container must be removed and recreated.
	ActionRecreate StartAction = "recreate"
)

// DetermineStartAction maps the observed container state to the action
// needed to bring the service up. Pure function.
func DetermineStartAction(state ContainerState) StartAction {
	switch state {
	case StateAbsent:
		return ActionCreate
	case StateRunning, StateRestarting:
		return ActionNone
	case StateCreated, StateExited:
		return ActionStart
	case StateDead:
		return ActionRecreate
	default:
		return ActionRecreate
	}
}

// =============================================================================
// Health Aggregation
// =============================================================================

// HealthStatus is the aggregated health of the deployed stack.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthStarting  HealthStatus = "starting"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// ContainerHealth is one container's contribution to stack health.
// Health is Docker's health string: "healthy", "unhealthy", "starting",
// or "" when the container has no healthcheck.
type ContainerHealth struct {
	Service string
	State   ContainerState
	Health  string
}

// AggregateHealth determines overall stack health from container states.
// A container without a healthcheck counts as healthy while running.
func AggregateHealth(containers []ContainerHealth) HealthStatus {
	if len(containers) == 0 {
		return HealthUnknown
	}

	starting := 0
	for _, c := range containers {
		if c.State != StateRunning && c.State != StateRestarting {
			return HealthUnhealthy
		}
		switch c.Health {
		case "unhealthy":
			return HealthUnhealthy
		case "starting":
			starting++
		}
	}

	if starting > 0 {
		return HealthStarting
	}
	return HealthHealthy
}
