// Package command provides CLI command definitions for lexsync.
package command

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lexsync/lexsync-go/internal/cli/output"
	"github.com/lexsync/lexsync-go/internal/core/domain"
)

// SnapshotCommand returns the snapshot subcommand group.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Aliases: []string{"snap"},
		Usage:   "Manage project snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Capture the current project state",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "description",
						Aliases: []string{"d"},
						Usage:   "Snapshot description",
					},
				},
				Action: snapshotCreate,
			},
			{
				Name:  "list",
				Usage: "List snapshots, newest first",
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
				Action: snapshotList,
			},
			{
				Name:      "show",
				Usage:     "Show snapshot details",
				ArgsUsage: "SNAPSHOT_ID",
				Action:    snapshotShow,
			},
			{
				Name:      "restore",
				Usage:     "Replace the project state with a snapshot",
				ArgsUsage: "SNAPSHOT_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-backup",
						Usage: "Skip the automatic pre-restore snapshot",
					},
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Message recorded on the restore history entry",
					},
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: snapshotRestore,
			},
			{
				Name:      "diff",
				Usage:     "Compare two snapshots",
				ArgsUsage: "FROM_ID TO_ID",
				Action:    snapshotDiff,
			},
			{
				Name:   "drift",
				Usage:  "Check for changes since the newest snapshot",
				Action: snapshotDrift,
			},
			{
				Name:      "delete",
				Usage:     "Delete a snapshot and its state blob",
				ArgsUsage: "SNAPSHOT_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: snapshotDelete,
			},
		},
	}
}

func snapshotCreate(c *cli.Context) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	spin := output.NewSpinner(os.Stderr, "capturing state")
	spin.Start()
	rec, err := env.Snapshots.Create(ctx, pid, flags.UserID, domain.SnapshotManual, c.String("description"))
	if err != nil {
		spin.Fail("snapshot failed")
		return err
	}
	spin.Success(fmt.Sprintf("snapshot %s created", rec.ID))

	return outputSnapshot(flags, rec)
}

func snapshotList(c *cli.Context) error {
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

	records, total, err := env.Snapshots.List(ctx, pid, flags.UserID, c.Int("limit"), c.Int("offset"))
	if err != nil {
		return fmt.Errorf("list snapshots failed: %w", err)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, records)
	}

	table := &output.Table{
		Headers: []string{"ID", "TYPE", "DESCRIPTION", "KEYS", "TRANSLATIONS", "LANGUAGES", "CREATED"},
	}
	for _, rec := range records {
		table.AddRow(
			rec.ID,
			rec.Type,
			truncateValue(rec.Description, flags.Wide),
			fmt.Sprintf("%d", rec.KeyCount),
			fmt.Sprintf("%d", rec.TranslationCount),
			fmt.Sprintf("%d", rec.LanguageCount),
			rec.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	if err := table.Render(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d snapshots\n", total)
	return nil
}

func snapshotShow(c *cli.Context) error {
	snapshotID := c.Args().First()
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID required")
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

	rec, err := env.Snapshots.Detail(ctx, pid, flags.UserID, snapshotID)
	if err != nil {
		return fmt.Errorf("show snapshot failed: %w", err)
	}
	return outputSnapshot(flags, rec)
}

func outputSnapshot(flags *GlobalFlags, rec *domain.SnapshotRecord) error {
	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, rec)
}

func snapshotRestore(c *cli.Context) error {
	snapshotID := c.Args().First()
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID required")
	}
	pid, err := requireProject(c)
	if err != nil {
		return err
	}

	if !c.Bool("force") {
		if !confirm(fmt.Sprintf("Restore %s? The current project state will be replaced", snapshotID)) {
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

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	spin := output.NewSpinner(os.Stderr, "restoring state")
	spin.Start()
	rec, err := env.Snapshots.Restore(ctx, pid, flags.UserID, snapshotID, !c.Bool("no-backup"), c.String("message"))
	if err != nil {
		spin.Fail("restore failed")
		return err
	}
	spin.Success(fmt.Sprintf("restored %s, recorded as %s", snapshotID, rec.ID))
	return nil
}

func snapshotDiff(c *cli.Context) error {
	fromID, toID := c.Args().Get(0), c.Args().Get(1)
	if fromID == "" || toID == "" {
		return fmt.Errorf("two snapshot IDs required")
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

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	diff, err := env.Snapshots.Diff(ctx, pid, flags.UserID, fromID, toID)
	if err != nil {
		return fmt.Errorf("diff failed: %w", err)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, diff)
	}

	fmt.Printf("Keys:      +%d -%d ~%d\n", len(diff.AddedKeys), len(diff.RemovedKeys), diff.ModifiedKeyCount)
	if len(diff.AddedKeys) > 0 {
		fmt.Printf("  added:   %s\n", strings.Join(diff.AddedKeys, ", "))
	}
	if len(diff.RemovedKeys) > 0 {
		fmt.Printf("  removed: %s\n", strings.Join(diff.RemovedKeys, ", "))
	}
	fmt.Printf("Languages: +%d -%d ~%d\n", len(diff.AddedLanguages), len(diff.RemovedLanguages), len(diff.ModifiedLanguages))
	return nil
}

func snapshotDrift(c *cli.Context) error {
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

	status, err := env.Snapshots.CheckDrift(ctx, pid, flags.UserID)
	if err != nil {
		return fmt.Errorf("drift check failed: %w", err)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, status)
	}

	if !status.HasUnsnapshotedChanges {
		fmt.Println("Project state matches the newest snapshot")
		return nil
	}
	if status.LastSnapshotAt.IsZero() {
		fmt.Println("Project has no snapshots")
	} else {
		fmt.Printf("Changes since snapshot of %s\n", status.LastSnapshotAt.Format(time.RFC3339))
	}
	return cli.Exit("", 2)
}

func snapshotDelete(c *cli.Context) error {
	snapshotID := c.Args().First()
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID required")
	}
	pid, err := requireProject(c)
	if err != nil {
		return err
	}

	if !c.Bool("force") {
		if !confirm(fmt.Sprintf("Delete %s? Its state blob will be removed", snapshotID)) {
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

	if err := env.Snapshots.Delete(ctx, pid, flags.UserID, snapshotID); err != nil {
		return fmt.Errorf("delete snapshot failed: %w", err)
	}
	fmt.Printf("Deleted %s\n", snapshotID)
	return nil
}
