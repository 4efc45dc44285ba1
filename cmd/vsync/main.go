// Command vsync submits validation batches and runs the Microsoft 365 and
// NVIDIA GPU Cloud admin integrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/homemade/vsync/sync"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

// app carries process-level collaborators into each command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	env    sync.EnvLookup
	fs     billy.Filesystem
	now    func() time.Time
	// client overrides the session HTTP client when set.
	client *http.Client
	// ngcSetup adjusts the NGC client before use when set.
	ngcSetup func(*sync.NGCClient)
}

// newApp wires the process streams, environment and working directory.
func newApp() app {
	return app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		env:    sync.OSEnv{},
		fs:     osfs.New("."),
		now:    time.Now,
	}
}

func main() {
	// .env is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(newApp().run(ctx, os.Args[1:]))
}

func (a app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.printUsage()
		return exitOK
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "validation":
		return a.validationCommand(ctx, commandArgs)
	case "m365":
		return a.m365Command(ctx, commandArgs)
	case "ngc":
		return a.ngcCommand(ctx, commandArgs)
	case "version", "-version", "--version":
		fmt.Fprintf(a.stdout, "vsync version %s\n", version)
		return exitOK
	case "help", "-help", "--help", "-h":
		a.printUsage()
		return exitOK
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n\n", command)
		a.printUsage()
		return exitFatal
	}
}

// session builds the per-invocation session, applying the client override.
func (a app) session(cfg sync.Config, logger logrus.FieldLogger) *sync.Session {
	s := sync.NewSession(cfg, sync.LoadCredentials(a.env), logger)
	s.Now = a.now
	if a.client != nil {
		s.Client = a.client
		s.ProbeClient = a.client
	}
	return s
}

func (a app) fatal(err error) int {
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return exitFatal
}

func (a app) printUsage() {
	fmt.Fprintln(a.stdout, "\nValidation Services Sync Tool")
	fmt.Fprintln(a.stdout, "=============================")
	fmt.Fprintln(a.stdout, "Usage: vsync <command> [options]")
	fmt.Fprintln(a.stdout, "Commands:")
	fmt.Fprintln(a.stdout, "  validation   Sync validation batches or health check the validation API")
	fmt.Fprintln(a.stdout, "  m365         Microsoft 365 admin and billing")
	fmt.Fprintln(a.stdout, "  ngc          NVIDIA GPU Cloud dashboard")
	fmt.Fprintln(a.stdout, "  version      Show version and exit")
	fmt.Fprintln(a.stdout, "Run 'vsync <command> -help' for command options.")
	fmt.Fprintln(a.stdout, "Examples:")
	fmt.Fprintln(a.stdout, "  vsync validation -config=workspace/jpmorgan-config.json -report")
	fmt.Fprintln(a.stdout, "  vsync validation -health-check")
	fmt.Fprintln(a.stdout, "  vsync m365 -billing-report")
	fmt.Fprintln(a.stdout, "  vsync ngc -dashboard")
}
