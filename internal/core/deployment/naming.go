package deployment

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// namePrefix is the prefix for every Docker resource the deployer owns.
const namePrefix = "sensormap"

// ContainerName generates the container name for a service.
// Pattern: sensormap_{serviceName}
//
// Example:
//
//	ContainerName("sensor-map") // returns "sensormap_sensor-map"
func ContainerName(serviceName string) string {
	return fmt.Sprintf("%s_%s", namePrefix, serviceName)
}

// NetworkName generates the name of the stack's bridge network.
func NetworkName() string {
	return namePrefix + "_default"
}

// ImageTag generates the image tag for a locally built service image when
// the compose file does not name one.
// Pattern: sensormap_{serviceName}:latest
func ImageTag(serviceName string) string {
	return fmt.Sprintf("%s_%s:latest", namePrefix, serviceName)
}
