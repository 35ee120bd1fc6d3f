// Package command provides CLI command definitions for lexsync.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lexsync/lexsync-go/internal/cli/output"
	"github.com/lexsync/lexsync-go/internal/core/service"
)

// PullCommand returns the pull command.
func PullCommand() *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Read project entries, optionally only those changed since an instant",
		Flags: []cli.Flag{
			&cli.TimestampFlag{
				Name:   "since",
				Usage:  "Only entries changed after this instant (RFC 3339)",
				Layout: time.RFC3339,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Page size",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Page offset",
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "Write all pages to FILE as JSON instead of printing one page",
			},
		},
		Action: pullAction,
	}
}

func pullAction(c *cli.Context) error {
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

	opts := service.PullOptions{
		Limit:  c.Int("limit"),
		Offset: c.Int("offset"),
	}
	if ts := c.Timestamp("since"); ts != nil && !ts.IsZero() {
		opts.Since = ts
	}

	if path := c.String("export"); path != "" {
		return pullExport(ctx, env, flags, pid, opts, path)
	}

	res, err := env.Sync.Pull(ctx, pid, flags.UserID, opts)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	return outputPull(flags, res)
}

// pullExport walks every page and writes the combined result to a file.
func pullExport(ctx context.Context, env *Env, flags *GlobalFlags, pid int64, opts service.PullOptions, path string) error {
	bar := output.NewProgressBar(os.Stderr, "exporting", "entries")

	combined := &service.PullResult{}
	for {
		res, err := env.Sync.Pull(ctx, pid, flags.UserID, opts)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		if combined.Entries == nil {
			*combined = *res
			bar.SetTotal(int64(res.Total))
		} else {
			combined.Entries = append(combined.Entries, res.Entries...)
			combined.SyncTimestamp = res.SyncTimestamp
		}
		bar.Update(int64(len(combined.Entries)), int64(res.Total))

		if !res.HasMore {
			break
		}
		opts.Offset += len(res.Entries)
	}
	bar.Finish()
	combined.HasMore = false

	data, err := json.MarshalIndent(combined, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("Exported %d entries to %s\n", len(combined.Entries), path)
	return nil
}

func outputPull(flags *GlobalFlags, res *service.PullResult) error {
	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, res)
	}

	table := &output.Table{
		Headers: []string{"KEY", "LANGUAGE", "VALUE", "STATUS", "UPDATED"},
	}
	for _, entry := range res.Entries {
		langs := make([]string, 0, len(entry.Translations))
		for lang := range entry.Translations {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			tr := entry.Translations[lang]
			value := tr.Value
			if entry.IsPlural {
				value = fmt.Sprintf("[%d plural forms]", len(tr.Forms))
			}
			table.AddRow(
				entry.Key,
				displayLang(lang),
				truncateValue(value, flags.Wide),
				string(tr.Status),
				tr.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
	}
	if err := table.Render(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d keys", res.Total)
	if res.HasMore {
		fmt.Print(" (more available)")
	}
	fmt.Println()
	return nil
}

func truncateValue(s string, wide bool) string {
	if wide || len(s) <= 40 {
		return s
	}
	return s[:37] + "..."
}
