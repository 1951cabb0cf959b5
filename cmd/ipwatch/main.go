// Package main provides the ipwatch CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ipwatch/internal/check"
	"ipwatch/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := exitCode(run(ctx, os.Args[1:], os.Stdout, os.Stderr), os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return check.Run(ctx, args, stdout, stderr)
}

// exitCode reports err on stderr and maps it to a process exit status.
// An empty field selection has already been announced on stdout.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, config.ErrNoFields) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}
