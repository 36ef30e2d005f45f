// Package main provides the sensormap binary that deploys and operates the
// microclimate sensor-map web application on the local Docker daemon.
//
// Usage:
//
//	sensormap [flags] <command>
//
// Commands:
//
//	deploy    - Check data artifacts, build the image, start the service
//	status    - Show container state and recent deploy history
//	logs      - Show service container logs
//	stop      - Stop and remove the service containers
//	restart   - Restart the service (suitable for a cron entry)
//	watch     - Run the recurring health check with auto-restart
//	version   - Show version information
package main

import (
	"flag"
	"fmt"
	"os"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess            = 0
	ExitConfigError        = 1
	ExitPreconditionFailed = 2
	ExitDockerError        = 3
	ExitWatchError         = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sensormap", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	if *showVersion {
		fmt.Printf("sensormap %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: sensormap [flags] <deploy|status|logs|stop|restart|watch|version>")
		return ExitConfigError
	}
	command := fs.Arg(0)
	commandArgs := fs.Args()[1:]

	if command == "version" {
		fmt.Printf("sensormap %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)

	app := &App{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	switch command {
	case "deploy":
		return app.Deploy(commandArgs)
	case "status":
		return app.Status(commandArgs)
	case "logs":
		return app.Logs(commandArgs)
	case "stop":
		return app.Stop(commandArgs)
	case "restart":
		return app.Restart(commandArgs)
	case "watch":
		return app.Watch(commandArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		return ExitConfigError
	}
}
