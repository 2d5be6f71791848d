// Package cmd implements the argus CLI's command set (spec.md §4.17):
// thin urfave/cli/v2 commands that load EnvConfig, dial the daemon via
// pkg/client, and print its response. Adapted from the teacher's
// pkg/cmd/common.go (setupClient) and cmd/*.go (ProcessContext,
// per-verb command wiring).
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/argusci/argus/pkg/client"
	"github.com/argusci/argus/pkg/config"
)

// ProcessContext returns a context cancelled when the process receives
// SIGINT or SIGTERM, so long-running commands (build/run/setup) can
// unwind cleanly on Ctrl-C.
func ProcessContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx
}

// setupClient loads EnvConfig (applying the --endpoint override, if
// given) and constructs a Client against it.
func setupClient(c *cli.Context) (*client.Client, *config.EnvConfig, error) {
	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return nil, nil, err
	}

	if endpoint := c.String("endpoint"); endpoint != "" {
		cfg.Client.Endpoint = endpoint
	}

	return client.New(cfg), cfg, nil
}

// projectPath resolves the --project flag to an absolute-enough path,
// defaulting to the current working directory.
func projectPath(c *cli.Context) (string, error) {
	if p := c.String("project"); p != "" {
		return p, nil
	}
	return os.Getwd()
}

// Flags are global flags attached to every argus subcommand.
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:  "endpoint",
		Usage: "override the daemon endpoint (default read from ~/.argus/env.toml)",
	},
	&cli.StringFlag{
		Name:  "project",
		Usage: "project directory (defaults to the current working directory)",
	},
}
