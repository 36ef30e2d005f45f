package compose

// =============================================================================
// Stack - Main Output Type
// =============================================================================

// Stack is the parsed representation of the sensor-map compose file,
// decoupled from compose-go types.
type Stack struct {
	Services []Service `json:"services"`
}

// PrimaryService returns the service the operator-facing URL points at: the
// first service that publishes a host port. Returns false if none does.
func (s *Stack) PrimaryService() (Service, bool) {
	for _, svc := range s.Services {
		for _, p := range svc.Ports {
			if p.Published != 0 {
				return svc, true
			}
		}
	}
	return Service{}, false
}

// PrimaryPort returns the published host port of the primary service. A
// stack where no service publishes a port has no reachable URL, which is an
// ErrNoPublishedPort.
func (s *Stack) PrimaryPort() (int, error) {
	svc, ok := s.PrimaryService()
	if !ok {
		return 0, ErrNoPublishedPort
	}
	return svc.PublishedPort(), nil
}

// =============================================================================
// Service Types
// =============================================================================

// Service represents a single service definition.
type Service struct {
	Name        string            `json:"name"`
	Image       string            `json:"image,omitempty"`
	Build       *BuildConfig      `json:"build,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Ports       []Port            `json:"ports,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Mounts      []Mount           `json:"mounts,omitempty"`
	Restart     RestartPolicy     `json:"restart,omitempty"`
	HealthCheck *HealthCheck      `json:"healthcheck,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// PublishedPort returns the first host port the service publishes, 0 if none.
func (s Service) PublishedPort() int {
	for _, p := range s.Ports {
		if p.Published != 0 {
			return int(p.Published)
		}
	}
	return 0
}

// BuildConfig represents the image build configuration.
type BuildConfig struct {
	Context    string `json:"context"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

// Port represents a port mapping.
type Port struct {
	Target    uint32 `json:"target"`
	Published uint32 `json:"published,omitempty"` // 0 = dynamic
	Protocol  string `json:"protocol,omitempty"`
	HostIP    string `json:"host_ip,omitempty"`
}

// Mount represents a bind mount in a service. The sensor-map stack mounts
// the data directory read-only into the container.
type Mount struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readonly"`
}

// RestartPolicy represents the restart policy.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// HealthCheck represents container health check configuration.
type HealthCheck struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
	Retries     int      `json:"retries,omitempty"`
	StartPeriod string   `json:"start_period,omitempty"`
}
