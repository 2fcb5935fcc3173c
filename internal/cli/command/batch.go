package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/LuKks/protobee/pkg/client"
)

// BatchCommand returns the batch command.
func BatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Apply several writes atomically",
		ArgsUsage: "KEY=VALUE...",
		Description: "Each KEY=VALUE is a put and each --del KEY a deletion. All of them\n" +
			"become visible together when the batch is flushed.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "del", Usage: "key to delete (repeatable)"},
			&cli.BoolFlag{Name: "cas", Usage: "skip puts whose stored value is equal"},
			&cli.BoolFlag{Name: "string", Usage: "always store values as JSON strings"},
			namespaceFlag(),
		},
		Action: runBatch,
	}
}

type batchOp struct {
	key   string
	value json.RawMessage
	del   bool
}

func parseBatch(c *cli.Context) ([]batchOp, error) {
	var ops []batchOp
	for _, arg := range c.Args().Slice() {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, cli.Exit(fmt.Sprintf("invalid argument %q, want KEY=VALUE", arg), 2)
		}
		value, err := parseValue(raw, c.Bool("string"))
		if err != nil {
			return nil, err
		}
		ops = append(ops, batchOp{key: key, value: value})
	}
	for _, key := range c.StringSlice("del") {
		ops = append(ops, batchOp{key: key, del: true})
	}
	if len(ops) == 0 {
		return nil, cli.Exit("nothing to write", 2)
	}
	return ops, nil
}

func runBatch(c *cli.Context) error {
	ops, err := parseBatch(c)
	if err != nil {
		return err
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	b, err := db.Batch()
	if err != nil {
		return err
	}
	ns := c.String("namespace")
	for _, op := range ops {
		if op.del {
			err = b.Del(ctx, op.key, client.DelOptions{Namespace: ns})
		} else {
			err = b.Put(ctx, op.key, op.value, client.PutOptions{CAS: c.Bool("cas"), Namespace: ns})
		}
		if err != nil {
			b.Close(ctx)
			return fmt.Errorf("%s: %w", op.key, err)
		}
	}
	if err := b.Flush(ctx); err != nil {
		return err
	}
	return render(c, versionInfo{Version: db.Version(), Length: db.Length()})
}
