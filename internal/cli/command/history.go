// Package command provides CLI command definitions for lexsync.
package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lexsync/lexsync-go/internal/cli/output"
)

// HistoryCommand returns the history subcommand group.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"hist"},
		Usage:   "Inspect and revert the change ledger",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List history entries, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Page size",
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Page offset",
					},
				},
				Action: historyList,
			},
			{
				Name:      "show",
				Usage:     "Show one history entry with its changes",
				ArgsUsage: "HISTORY_ID",
				Action:    historyShow,
			},
			{
				Name:      "revert",
				Usage:     "Undo a history entry by applying its inverse",
				ArgsUsage: "HISTORY_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Message recorded on the revert entry",
					},
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: historyRevert,
			},
		},
	}
}

func historyList(c *cli.Context) error {
	pid, err := requireProject(c)
	if err != nil {
		return err
	}

	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	flags := ParseGlobalFlags(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, total, err := env.History.List(ctx, pid, flags.UserID, c.Int("limit"), c.Int("offset"))
	if err != nil {
		return fmt.Errorf("list history failed: %w", err)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, entries)
	}

	table := &output.Table{
		Headers: []string{"ID", "OPERATION", "MESSAGE", "+", "~", "-", "STATUS", "CREATED"},
	}
	for _, e := range entries {
		table.AddRow(
			e.ID,
			string(e.Operation),
			truncateValue(e.Message, flags.Wide),
			fmt.Sprintf("%d", e.Added),
			fmt.Sprintf("%d", e.Modified),
			fmt.Sprintf("%d", e.Deleted),
			string(e.Status),
			e.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	if err := table.Render(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d entries\n", total)
	return nil
}

func historyShow(c *cli.Context) error {
	historyID := c.Args().First()
	if historyID == "" {
		return fmt.Errorf("history ID required")
	}
	pid, err := requireProject(c)
	if err != nil {
		return err
	}

	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	flags := ParseGlobalFlags(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entry, err := env.History.Detail(ctx, pid, flags.UserID, historyID)
	if err != nil {
		return fmt.Errorf("show history failed: %w", err)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, entry)
	}

	fmt.Printf("ID:        %s\n", entry.ID)
	fmt.Printf("Operation: %s\n", entry.Operation)
	if entry.Message != "" {
		fmt.Printf("Message:   %s\n", entry.Message)
	}
	fmt.Printf("Status:    %s\n", entry.Status)
	if entry.RevertedFromID != "" {
		fmt.Printf("Reverts:   %s\n", entry.RevertedFromID)
	}
	fmt.Printf("Created:   %s by user %d\n\n", entry.CreatedAt.Format(time.RFC3339), entry.UserID)

	table := &output.Table{
		Headers: []string{"CHANGE", "KEY", "LANGUAGE", "BEFORE", "AFTER"},
	}
	for _, ch := range entry.Changes {
		table.AddRow(
			string(ch.Type),
			ch.KeyName,
			displayLang(ch.Language),
			truncateValue(ch.BeforeValue, flags.Wide),
			truncateValue(ch.AfterValue, flags.Wide),
		)
	}
	return table.Render(os.Stdout)
}

func historyRevert(c *cli.Context) error {
	historyID := c.Args().First()
	if historyID == "" {
		return fmt.Errorf("history ID required")
	}
	pid, err := requireProject(c)
	if err != nil {
		return err
	}

	if !c.Bool("force") {
		if !confirm(fmt.Sprintf("Revert %s? The inverse of its changes will be applied", historyID)) {
			fmt.Println("Aborted")
			return nil
		}
	}

	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	flags := ParseGlobalFlags(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entry, err := env.History.Revert(ctx, pid, flags.UserID, historyID, c.String("message"))
	if err != nil {
		return fmt.Errorf("revert failed: %w", err)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, entry)
	}

	fmt.Printf("Reverted %s, recorded as %s (%d changes)\n", historyID, entry.ID, len(entry.Changes))
	return nil
}

// confirm prompts for a yes/no answer on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}
