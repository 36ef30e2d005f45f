package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerName(t *testing.T) {
	assert.Equal(t, "sensormap_sensor-map", ContainerName("sensor-map"))
}

func TestNetworkName(t *testing.T) {
	assert.Equal(t, "sensormap_default", NetworkName())
}

func TestImageTag(t *testing.T) {
	assert.Equal(t, "sensormap_sensor-map:latest", ImageTag("sensor-map"))
}

func TestServiceURLNaming(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		basePath string
		expected string
	}{
		{"with base path", "localhost", 8501, "/sensor-map", "http://localhost:8501/sensor-map"},
		{"missing leading slash", "localhost", 8501, "sensor-map", "http://localhost:8501/sensor-map"},
		{"no base path", "localhost", 8501, "", "http://localhost:8501"},
		{"other host", "sensors.example.org", 80, "/sensor-map", "http://sensors.example.org:80/sensor-map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ServiceURL(tt.host, tt.port, tt.basePath))
		})
	}
}

func TestHealthURLNaming(t *testing.T) {
	assert.Equal(t, "http://localhost:8501/sensor-map/healthz", HealthURL("localhost", 8501, "/sensor-map"))
	assert.Equal(t, "http://localhost:8501/healthz", HealthURL("localhost", 8501, ""))
	assert.Equal(t, "http://localhost:8501/sensor-map/healthz", HealthURL("localhost", 8501, "/sensor-map/"))
}
