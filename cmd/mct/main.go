// mct is a terminal AI assistant with distributed, synced history.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpterm/mcpterm/internal/telemetry"
	"github.com/mcpterm/mcpterm/internal/types"
)

// Version is stamped by the build.
var Version = "dev"

// Exit codes: 0 success, 1 generic failure, 2 configuration or schema
// problem, 130 interrupted.
const (
	exitOK        = 0
	exitFailure   = 1
	exitConfig    = 2
	exitInterrupt = 130
)

var (
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := telemetry.Init(rootCtx, "mct", Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	}
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	err := rootCmd.ExecuteContext(rootCtx)
	if err == nil {
		os.Exit(exitOK)
	}

	switch {
	case errors.Is(err, context.Canceled):
		os.Exit(exitInterrupt)
	case errors.Is(err, types.ErrSchemaMissing), errors.Is(err, types.ErrBadInput):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfig)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
}
