package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/argusci/argus/pkg/api"
)

// printJSON pretty-prints v to stdout, the teacher's convention for
// commands with no bespoke rendering.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// InitCommand creates a session for the current (or --project) project.
var InitCommand = &cli.Command{
	Name:  "init",
	Usage: "initialize a session for a project",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to the project's config file", Value: "e2e.toml"},
	},
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.Init(api.InitRequest{ProjectPath: path, ConfigPath: c.String("config")})
		if err != nil {
			return err
		}
		fmt.Printf("session %s initialized at state %s\n", resp.SessionID, resp.State)
		return nil
	},
}

// BuildCommand builds every declared service's image.
var BuildCommand = &cli.Command{
	Name:  "build",
	Usage: "build every declared service's image",
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.Build(api.BuildRequest{ProjectPath: path})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// SetupCommand starts every declared service and waits for health.
var SetupCommand = &cli.Command{
	Name:  "setup",
	Usage: "start every declared service and wait for it to become healthy",
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.Setup(api.SetupRequest{ProjectPath: path})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// RunCommand runs every declared suite, or a --suite-id subset.
var RunCommand = &cli.Command{
	Name:  "run",
	Usage: "run every declared suite",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "suite-id", Usage: "restrict the run to these suite IDs"},
	},
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.Run(api.RunRequest{ProjectPath: path, SuiteIDs: c.StringSlice("suite-id")})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// RunSuiteCommand runs a single named suite.
var RunSuiteCommand = &cli.Command{
	Name:      "run-suite",
	Usage:     "run a single named suite",
	ArgsUsage: "<suite-id>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.ShowSubcommandHelp(c)
		}
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.RunSuite(api.RunSuiteRequest{ProjectPath: path, SuiteID: c.Args().First()})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// CleanCommand tears down a session's services and mocks.
var CleanCommand = &cli.Command{
	Name:  "clean",
	Usage: "tear down every running service and mock",
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.Clean(api.CleanRequest{ProjectPath: path})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// StatusCommand reports a session's current lifecycle state. Passing
// --task-id also polls the outcome of a prior build/run-suite/clean
// invocation instead of requiring its original connection to stay open.
var StatusCommand = &cli.Command{
	Name:  "status",
	Usage: "report a session's current lifecycle state",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "task-id", Usage: "poll a previously reported task ID"},
	},
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.Status(api.StatusRequest{ProjectPath: path, TaskID: c.String("task-id")})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// HistoryCommand queries persisted run history.
var HistoryCommand = &cli.Command{
	Name:  "history",
	Usage: "query persisted run history",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20},
		&cli.IntFlag{Name: "offset"},
	},
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.History(api.HistoryRequest{
			ProjectPath: path,
			Limit:       c.Int("limit"),
			Offset:      c.Int("offset"),
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// DiagnoseCommand classifies a failure against the knowledge base.
var DiagnoseCommand = &cli.Command{
	Name:  "diagnose",
	Usage: "classify a reported failure against the knowledge base",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "case-name", Required: true},
		&cli.StringFlag{Name: "suite-id"},
		&cli.StringFlag{Name: "error", Required: true},
	},
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.Diagnose(api.DiagnoseRequest{
			ProjectPath: path,
			CaseName:    c.String("case-name"),
			SuiteID:     c.String("suite-id"),
			Error:       c.String("error"),
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// ReportFixCommand records a fix attempt's outcome.
var ReportFixCommand = &cli.Command{
	Name:  "report-fix",
	Usage: "record the outcome of an attempted fix",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "pattern-id", Required: true},
		&cli.StringFlag{Name: "description"},
		&cli.BoolFlag{Name: "success"},
	},
	Action: func(c *cli.Context) error {
		cl, _, err := setupClient(c)
		if err != nil {
			return err
		}
		path, err := projectPath(c)
		if err != nil {
			return err
		}
		resp, err := cl.ReportFix(api.ReportFixRequest{
			ProjectPath: path,
			PatternID:   c.String("pattern-id"),
			Description: c.String("description"),
			Success:     c.Bool("success"),
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// Commands is the full set of argus subcommands.
var Commands = []*cli.Command{
	DaemonCommand,
	InitCommand,
	BuildCommand,
	SetupCommand,
	RunCommand,
	RunSuiteCommand,
	CleanCommand,
	StatusCommand,
	HistoryCommand,
	DiagnoseCommand,
	ReportFixCommand,
}
