package deployment

import (
	"fmt"
	"strings"
)

// =============================================================================
// Service URL Construction
// =============================================================================

// ServiceURL builds the operator-facing URL for the deployed service.
//
// Example:
//
//	ServiceURL("localhost", 8501, "/sensor-map") // "http://localhost:8501/sensor-map"
func ServiceURL(host string, port int, basePath string) string {
	return fmt.Sprintf("http://%s:%d%s", host, port, normalizeBasePath(basePath))
}

// HealthURL builds the URL of the service's health-check endpoint, served
// under the base path.
//
// Example:
//
//	HealthURL("localhost", 8501, "/sensor-map") // "http://localhost:8501/sensor-map/healthz"
func HealthURL(host string, port int, basePath string) string {
	base := strings.TrimSuffix(normalizeBasePath(basePath), "/")
	return fmt.Sprintf("http://%s:%d%s/healthz", host, port, base)
}

// normalizeBasePath ensures the base path starts with a slash. An empty
// base path stays empty so the URL points at the root.
func normalizeBasePath(basePath string) string {
	if basePath == "" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		return "/" + basePath
	}
	return basePath
}
