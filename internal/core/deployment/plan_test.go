package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Deploy Plan Tests
// =============================================================================

func TestNewDeployPlan_StandardOrder(t *testing.T) {
	plan := NewDeployPlan(false)

	require.Len(t, plan.Steps, 4)
	assert.Equal(t, StepCheckArtifacts, plan.Steps[0])
	assert.Equal(t, StepBuildImage, plan.Steps[1])
	assert.Equal(t, StepStartService, plan.Steps[2])
	assert.Equal(t, StepWaitHealthy, plan.Steps[3])
}

func TestNewDeployPlan_SkipHealthWait(t *testing.T) {
	plan := NewDeployPlan(true)

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, StepStartService, plan.Steps[len(plan.Steps)-1])
}

// =============================================================================
// Start Action Tests
// =============================================================================

func TestDetermineStartAction(t *testing.T) {
	tests := []struct {
		state    ContainerState
		expected StartAction
	}{
		{StateAbsent, ActionCreate},
		{StateRunning, ActionNone},
		{StateRestarting, ActionNone},
		{StateCreated, ActionStart},
		{StateExited, ActionStart},
		{StateDead, ActionRecreate},
		{ContainerState("paused"), ActionRecreate},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, DetermineStartAction(tt.state))
		})
	}
}

// =============================================================================
// Health Aggregation Tests
// =============================================================================

func TestAggregateHealth(t *testing.T) {
	tests := []struct {
		name       string
		containers []ContainerHealth
		expected   HealthStatus
	}{
		{
			name:       "no containers",
			containers: nil,
			expected:   HealthUnknown,
		},
		{
			name: "running with healthcheck healthy",
			containers: []ContainerHealth{
				{Service: "sensor-map", State: StateRunning, Health: "healthy"},
			},
			expected: HealthHealthy,
		},
		{
			name: "running without healthcheck",
			containers: []ContainerHealth{
				{Service: "sensor-map", State: StateRunning, Health: ""},
			},
			expected: HealthHealthy,
		},
		{
			name: "still starting",
			containers: []ContainerHealth{
				{Service: "sensor-map", State: StateRunning, Health: "starting"},
			},
			expected: HealthStarting,
		},
		{
			name: "unhealthy container",
			containers: []ContainerHealth{
				{Service: "sensor-map", State: StateRunning, Health: "unhealthy"},
			},
			expected: HealthUnhealthy,
		},
		{
			name: "exited container",
			containers: []ContainerHealth{
				{Service: "sensor-map", State: StateExited, Health: ""},
			},
			expected: HealthUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AggregateHealth(tt.containers))
		})
	}
}
