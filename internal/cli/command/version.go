package command

import (
	"github.com/urfave/cli/v2"

	"github.com/LuKks/protobee/internal/infra/buildinfo"
)

// versionInfo is printed after writes and by the version command.
type versionInfo struct {
	Version uint64 `json:"version"`
	Length  uint64 `json:"length"`
}

type versionReport struct {
	Client  buildinfo.Info `json:"client"`
	Server  string         `json:"server"`
	Version uint64         `json:"version"`
	Length  uint64         `json:"length"`
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show client build and remote bee version",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "local", Usage: "skip contacting the server"},
		},
		Action: runVersion,
	}
}

func runVersion(c *cli.Context) error {
	if c.Bool("local") {
		return render(c, buildinfo.Get())
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	if err := db.Update(ctx); err != nil {
		return err
	}
	return render(c, versionReport{
		Client:  buildinfo.Get(),
		Server:  GetConnectionManager(c).Config().Server,
		Version: db.Version(),
		Length:  db.Length(),
	})
}
