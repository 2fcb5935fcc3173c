package command

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/LuKks/protobee/pkg/client"
)

func namespaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "namespace",
		Aliases: []string{"n"},
		Usage:   "key namespace",
	}
}

// rangeFlags are shared by every command that scans keys.
func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "gt", Usage: "keys strictly greater than"},
		&cli.StringFlag{Name: "gte", Usage: "keys greater than or equal to"},
		&cli.StringFlag{Name: "lt", Usage: "keys strictly less than"},
		&cli.StringFlag{Name: "lte", Usage: "keys less than or equal to"},
		&cli.BoolFlag{Name: "reverse", Aliases: []string{"r"}, Usage: "iterate in descending order"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum number of results (0 = unlimited)"},
		namespaceFlag(),
	}
}

func parseRange(c *cli.Context) (client.Range, client.ReadOptions, error) {
	if c.Int("limit") < 0 {
		return client.Range{}, client.ReadOptions{}, cli.Exit("--limit must not be negative", 2)
	}
	rng := client.Range{
		Gt:  c.String("gt"),
		Gte: c.String("gte"),
		Lt:  c.String("lt"),
		Lte: c.String("lte"),
	}
	opts := client.ReadOptions{
		Reverse:   c.Bool("reverse"),
		Limit:     c.Int("limit"),
		Namespace: c.String("namespace"),
	}
	return rng, opts, nil
}

// parseValue treats valid JSON as-is and anything else as a JSON string,
// so `put k 42` stores a number and `put k hello` stores "hello".
func parseValue(s string, forceString bool) (json.RawMessage, error) {
	if !forceString && json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	return json.Marshal(s)
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Read the latest value of a key",
		ArgsUsage: "KEY",
		Flags:     []cli.Flag{namespaceFlag()},
		Action:    runGet,
	}
}

func runGet(c *cli.Context) error {
	if err := requireArgs(c, 1, "KEY"); err != nil {
		return err
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	key := c.Args().First()
	node, err := db.Get(ctx, key, client.KeyOptions{Namespace: c.String("namespace")})
	if err != nil {
		return err
	}
	if node == nil {
		return cli.Exit(fmt.Sprintf("key %q not found", key), 1)
	}
	return render(c, node)
}

// PutCommand returns the put command.
func PutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Write a value",
		ArgsUsage: "KEY VALUE",
		Description: "VALUE is stored as JSON when it parses as JSON, otherwise as a string.\n" +
			"With --cas the write is skipped when the stored value is equal.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "cas", Usage: "skip the write when the stored value is equal"},
			&cli.BoolFlag{Name: "string", Usage: "always store VALUE as a JSON string"},
			namespaceFlag(),
		},
		Action: runPut,
	}
}

func runPut(c *cli.Context) error {
	if err := requireArgs(c, 2, "KEY VALUE"); err != nil {
		return err
	}
	value, err := parseValue(c.Args().Get(1), c.Bool("string"))
	if err != nil {
		return err
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	opts := client.PutOptions{CAS: c.Bool("cas"), Namespace: c.String("namespace")}
	if err := db.Put(ctx, c.Args().First(), value, opts); err != nil {
		return err
	}
	return render(c, versionInfo{Version: db.Version(), Length: db.Length()})
}

// DelCommand returns the del command.
func DelCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Aliases:   []string{"delete"},
		Usage:     "Delete a key",
		ArgsUsage: "KEY",
		Flags:     []cli.Flag{namespaceFlag()},
		Action:    runDel,
	}
}

func runDel(c *cli.Context) error {
	if err := requireArgs(c, 1, "KEY"); err != nil {
		return err
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	if err := db.Del(ctx, c.Args().First(), client.DelOptions{Namespace: c.String("namespace")}); err != nil {
		return err
	}
	return render(c, versionInfo{Version: db.Version(), Length: db.Length()})
}

// PeekCommand returns the peek command.
func PeekCommand() *cli.Command {
	return &cli.Command{
		Name:   "peek",
		Usage:  "Read the first node of a range",
		Flags:  rangeFlags(),
		Action: runPeek,
	}
}

func runPeek(c *cli.Context) error {
	rng, opts, err := parseRange(c)
	if err != nil {
		return err
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	node, err := db.Peek(ctx, rng, opts)
	if err != nil {
		return err
	}
	if node == nil {
		return cli.Exit("range is empty", 1)
	}
	return render(c, node)
}

// HeaderCommand returns the header command.
func HeaderCommand() *cli.Command {
	return &cli.Command{
		Name:   "header",
		Usage:  "Show the header block",
		Action: runHeader,
	}
}

func runHeader(c *cli.Context) error {
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	header, err := db.GetHeader(ctx, client.HeaderOptions{})
	if err != nil {
		return err
	}
	if header == nil {
		return cli.Exit("header not found", 1)
	}
	return render(c, header)
}
