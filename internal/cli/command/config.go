package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/LuKks/protobee/internal/cli/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShow,
			},
			{
				Name:      "set",
				Usage:     "Store a value in the config file",
				ArgsUsage: "KEY VALUE",
				Description: fmt.Sprintf("KEY is one of %v. Values from the environment and\n"+
					"global flags are not written to the file.", config.Keys),
				Action: configSet,
			},
			{
				Name:   "validate",
				Usage:  "Check that the configuration can be used to connect",
				Action: configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}
	return render(c, config.Sanitize(mgr.Config()))
}

func configSet(c *cli.Context) error {
	if err := requireArgs(c, 2, "KEY VALUE"); err != nil {
		return err
	}
	path := c.String("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := config.Set(path, c.Args().Get(0), c.Args().Get(1)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s saved to %s\n", c.Args().Get(0), path)
	return nil
}

func configValidate(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}
	if err := config.Verify(mgr.Config()); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "configuration is valid")
	return nil
}
