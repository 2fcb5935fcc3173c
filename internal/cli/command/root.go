package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/LuKks/protobee/internal/cli/config"
	"github.com/LuKks/protobee/internal/cli/connection"
	"github.com/LuKks/protobee/internal/cli/output"
	"github.com/LuKks/protobee/internal/infra/buildinfo"
	"github.com/LuKks/protobee/internal/telemetry/logger"
	"github.com/LuKks/protobee/pkg/client"
)

const (
	metaManager   = "connMgr"
	metaFormatter = "formatter"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "protobee-cli",
		Usage:                "Read and write a remote protobee",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			VersionCommand(),
			GetCommand(),
			PutCommand(),
			DelCommand(),
			PeekCommand(),
			ScanCommand(),
			HistoryCommand(),
			DiffCommand(),
			HeaderCommand(),
			BatchCommand(),
			ConfigCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file (default ~/.protobee/cli.yaml)",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "protobee-server address (host:port)",
		},
		&cli.StringFlag{
			Name:  "server-key",
			Usage: "server public key (hex)",
		},
		&cli.StringFlag{
			Name:  "client-key",
			Usage: "client primary key (hex)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "omit table headers",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per command timeout",
			Value: 30 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "log client activity to stderr",
		},
	}
}

// overrides maps explicitly set global flags onto config keys.
func overrides(c *cli.Context) map[string]any {
	flags := map[string]string{
		"server":     "server",
		"server-key": "server_key",
		"client-key": "client_key",
		"output":     "output",
	}
	out := make(map[string]any)
	for flag, key := range flags {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"), overrides(c))
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Format: "text", Output: c.App.ErrWriter})

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metaManager] = connection.NewManager(cfg, log)
	c.App.Metadata[metaFormatter] = output.NewFormatter(format, c.Bool("no-headers"))
	return nil
}

func teardown(c *cli.Context) error {
	mgr, ok := c.App.Metadata[metaManager].(*connection.Manager)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return mgr.Close(ctx)
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	mgr, _ := c.App.Metadata[metaManager].(*connection.Manager)
	return mgr
}

// connect opens the client and returns a context bounded by --timeout.
func connect(c *cli.Context) (*client.DB, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	mgr := GetConnectionManager(c)
	if mgr == nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connection manager not initialized")
	}
	db, err := mgr.Connect(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return db, ctx, cancel, nil
}

// render prints data in the selected output format.
func render(c *cli.Context, data any) error {
	f, ok := c.App.Metadata[metaFormatter].(output.Formatter)
	if !ok {
		f = output.NewFormatter(output.FormatTable, false)
	}
	return f.Format(c.App.Writer, data)
}

// requireArgs checks the positional argument count.
func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() != n {
		return cli.Exit(fmt.Sprintf("usage: %s %s %s", c.App.Name, c.Command.Name, usage), 2)
	}
	return nil
}
