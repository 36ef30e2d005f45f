// Package deployment contains pure deployment logic: resource naming,
// deploy step planning, and service URL construction. No I/O happens here;
// the docker orchestrator executes the plans this package produces.
package deployment
