package command

import (
	"encoding/json"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/LuKks/protobee/pkg/client"
)

func prefetchFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "prefetch",
		Usage: "nodes requested per page",
		Value: 32,
	}
}

// ScanCommand returns the scan command.
func ScanCommand() *cli.Command {
	return &cli.Command{
		Name:    "scan",
		Aliases: []string{"ls"},
		Usage:   "List nodes in a key range",
		Flags:   append(rangeFlags(), prefetchFlag()),
		Action:  runScan,
	}
}

func runScan(c *cli.Context) error {
	rng, opts, err := parseRange(c)
	if err != nil {
		return err
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	nodes := []client.Node{}
	stream := db.ReadStream(rng, opts, client.WithPrefetch(c.Int("prefetch")))
	for node, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		nodes = append(nodes, *node)
	}
	return render(c, nodes)
}

// HistoryCommand returns the history command.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List log entries by sequence number",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "gt", Usage: "entries after seq"},
			&cli.Uint64Flag{Name: "gte", Usage: "entries from seq"},
			&cli.Uint64Flag{Name: "lt", Usage: "entries before seq"},
			&cli.Uint64Flag{Name: "lte", Usage: "entries up to seq"},
			&cli.BoolFlag{Name: "reverse", Aliases: []string{"r"}, Usage: "newest first"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum number of entries (0 = unlimited)"},
			namespaceFlag(),
			prefetchFlag(),
		},
		Action: runHistory,
	}
}

func runHistory(c *cli.Context) error {
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must not be negative", 2)
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	opts := client.HistoryOptions{
		Gt:        c.Uint64("gt"),
		Gte:       c.Uint64("gte"),
		Lt:        c.Uint64("lt"),
		Lte:       c.Uint64("lte"),
		Reverse:   c.Bool("reverse"),
		Limit:     c.Int("limit"),
		Namespace: c.String("namespace"),
	}
	entries := []client.HistoryEntry{}
	stream := db.HistoryStream(opts, client.WithPrefetch(c.Int("prefetch")))
	for entry, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		entries = append(entries, *entry)
	}
	return render(c, entries)
}

// diffRow flattens a DiffEntry for display.
type diffRow struct {
	Key      string          `json:"key"`
	LeftSeq  uint64          `json:"left_seq,omitempty"`
	Left     json.RawMessage `json:"left"`
	RightSeq uint64          `json:"right_seq,omitempty"`
	Right    json.RawMessage `json:"right"`
}

func newDiffRow(e *client.DiffEntry) diffRow {
	var row diffRow
	if e.Left != nil {
		row.Key = e.Left.Key
		row.LeftSeq = e.Left.Seq
		row.Left = e.Left.Value
	}
	if e.Right != nil {
		row.Key = e.Right.Key
		row.RightSeq = e.Right.Seq
		row.Right = e.Right.Value
	}
	return row
}

// DiffCommand returns the diff command.
func DiffCommand() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "List keys that changed since VERSION",
		ArgsUsage: "VERSION",
		Description: "LEFT is the current version and RIGHT is VERSION. A missing side\n" +
			"means the key does not exist in that version.",
		Flags:  append(rangeFlags(), prefetchFlag()),
		Action: runDiff,
	}
}

func runDiff(c *cli.Context) error {
	if err := requireArgs(c, 1, "VERSION"); err != nil {
		return err
	}
	other, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return cli.Exit("VERSION must be a non-negative integer", 2)
	}
	rng, opts, err := parseRange(c)
	if err != nil {
		return err
	}
	db, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()

	rows := []diffRow{}
	stream := db.DiffStream(client.AtVersion(other), rng, opts, client.WithPrefetch(c.Int("prefetch")))
	for entry, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		rows = append(rows, newDiffRow(entry))
	}
	return render(c, rows)
}
