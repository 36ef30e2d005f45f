// Package artifact checks the data artifacts the sensor-map service needs
// before a deployment is allowed to proceed.
//
// The artifacts themselves are opaque: they are produced by the external
// data-merge pipeline and only their presence gates deployment.
package artifact

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// =============================================================================
// Artifact Definitions
// =============================================================================

// Kind identifies what role an artifact plays for the service.
type Kind string

const (
	// KindMeasurements is the hourly-aggregated sensor measurement file.
	KindMeasurements Kind = "measurements"
	// KindMetadata is the geospatial sensor-metadata file.
	KindMetadata Kind = "metadata"
	// KindWeather is the FMI weather station overlay file.
	KindWeather Kind = "weather"
)

// Artifact describes one input file the service reads at runtime.
type Artifact struct {
	Kind Kind
	// Path is relative to the data directory.
	Path string
	// Optional artifacts produce a warning instead of failing the gate.
	Optional bool
}

// Required returns the artifacts the sensor-map service cannot start
// without, in the order they are checked.
func Required(dataDir string) []Artifact {
	return []Artifact{
		{Kind: KindMeasurements, Path: filepath.Join(dataDir, "data_1h.parquet")},
		{Kind: KindMetadata, Path: filepath.Join(dataDir, "data_latest.geojson")},
		{Kind: KindWeather, Path: filepath.Join(dataDir, "fmi_1h.parquet"), Optional: true},
	}
}

// =============================================================================
// Check Results
// =============================================================================

// CheckResult reports the outcome of checking a single artifact.
type CheckResult struct {
	Artifact Artifact
	Present  bool
	Empty    bool
	Size     int64
}

// OK reports whether the artifact passed the gate.
func (r CheckResult) OK() bool {
	return r.Present && !r.Empty
}

// MissingError describes a required artifact that failed the gate.
type MissingError struct {
	Artifact Artifact
	Empty    bool
}

func (e *MissingError) Error() string {
	if e.Empty {
		return fmt.Sprintf("required %s file %s is empty", e.Artifact.Kind, e.Artifact.Path)
	}
	return fmt.Sprintf("required %s file %s not found", e.Artifact.Kind, e.Artifact.Path)
}

// =============================================================================
// Checker
// =============================================================================

// Checker verifies artifact presence on a filesystem.
type Checker struct {
	fs afero.Fs
}

// NewChecker creates a checker against the given filesystem.
// A nil fs defaults to the OS filesystem.
func NewChecker(fs afero.Fs) *Checker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Checker{fs: fs}
}

// Check inspects a single artifact.
func (c *Checker) Check(a Artifact) CheckResult {
	info, err := c.fs.Stat(a.Path)
	if err != nil || info.IsDir() {
		return CheckResult{Artifact: a}
	}
	return CheckResult{
		Artifact: a,
		Present:  true,
		Empty:    info.Size() == 0,
		Size:     info.Size(),
	}
}

// CheckAll checks artifacts in order and returns every result along with the
// first gate failure, if any. A zero-byte required file fails the gate: an
// empty parquet is as undeployable as an absent one. Optional artifacts never
// fail the gate.
func (c *Checker) CheckAll(artifacts []Artifact) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(artifacts))
	var firstErr error

	for _, a := range artifacts {
		res := c.Check(a)
		results = append(results, res)

		if res.OK() || a.Optional || firstErr != nil {
			continue
		}
		firstErr = &MissingError{Artifact: a, Empty: res.Empty}
	}

	return results, firstErr
}
