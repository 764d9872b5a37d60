package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lakeshift/lakeshift/internal/cli/lakeshift"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := lakeshift.Run(ctx, os.Args[1:], lakeshift.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
