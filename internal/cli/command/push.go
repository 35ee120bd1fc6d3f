// Package command provides CLI command definitions for lexsync.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lexsync/lexsync-go/internal/cli/output"
	"github.com/lexsync/lexsync-go/internal/core/service"
)

// PushCommand returns the push command.
func PushCommand() *cli.Command {
	return &cli.Command{
		Name:      "push",
		Usage:     "Apply a batch of translation changes",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Batch file (JSON with entries and deletions)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "History message, overrides the one in the batch file",
			},
		},
		Action: pushAction,
	}
}

func pushAction(c *cli.Context) error {
	pid, err := requireProject(c)
	if err != nil {
		return err
	}

	var req service.PushRequest
	if err := readJSONFile(c.String("file"), &req); err != nil {
		return err
	}
	if msg := c.String("message"); msg != "" {
		req.Message = msg
	}
	if len(req.Entries) == 0 && len(req.Deletions) == 0 {
		return fmt.Errorf("batch file contains no entries or deletions")
	}

	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	flags := ParseGlobalFlags(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := env.Sync.Push(ctx, pid, flags.UserID, req)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	if len(res.Conflicts) > 0 {
		if err := outputConflicts(flags, res); err != nil {
			return err
		}
		return cli.Exit("push rejected: batch conflicts with current state", 1)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, res)
	}

	fmt.Printf("Applied %d entries, %d deletions\n", res.Applied, res.Deleted)
	if res.HistoryRecorded {
		fmt.Printf("History: %s\n", res.HistoryID)
	}
	return nil
}

func outputConflicts(flags *GlobalFlags, res *service.PushResult) error {
	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, res)
	}

	table := &output.Table{
		Headers: []string{"KEY", "LANGUAGE", "TYPE", "REMOTE HASH", "REMOTE UPDATED"},
	}
	for _, conflict := range res.Conflicts {
		table.AddRow(
			conflict.KeyName,
			displayLang(conflict.Language),
			string(conflict.Type),
			truncateHash(conflict.RemoteHash),
			conflict.RemoteUpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	if err := table.Render(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\n%d conflicts, nothing applied\n", len(res.Conflicts))
	return nil
}

// readJSONFile decodes a JSON file into target, rejecting unknown
// fields so typos in batch files fail loudly.
func readJSONFile(path string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// displayLang renders the default-language sentinel readably.
func displayLang(lang string) string {
	if lang == "" {
		return "(default)"
	}
	return lang
}

func truncateHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
