// Command argus is the CLI entrypoint: a thin urfave/cli/v2 binary whose
// subcommands (pkg/cmd) call the daemon over pkg/client. Adapted from the
// teacher's root main.go.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/argusci/argus/pkg/cmd"
	"github.com/argusci/argus/pkg/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "argus"
	app.Usage = "end-to-end test orchestrator for multi-service projects"
	app.Commands = cmd.Commands
	app.Flags = cmd.Flags
	app.HideVersion = true
	app.Before = func(c *cli.Context) error {
		configureLogging(c)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configureLogging(c *cli.Context) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			panic(err)
		}
		logging.SetLevel(l)
	}
}
