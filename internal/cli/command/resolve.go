// Package command provides CLI command definitions for lexsync.
package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lexsync/lexsync-go/internal/cli/output"
	"github.com/lexsync/lexsync-go/internal/core/domain"
)

// ResolveCommand returns the resolve command.
func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Apply conflict resolutions from a file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Resolutions file (JSON array of {key, lang, resolution, edited_value})",
				Required: true,
			},
		},
		Action: resolveAction,
	}
}

func resolveAction(c *cli.Context) error {
	pid, err := requireProject(c)
	if err != nil {
		return err
	}

	var resolutions []domain.Resolution
	if err := readJSONFile(c.String("file"), &resolutions); err != nil {
		return err
	}
	if len(resolutions) == 0 {
		return fmt.Errorf("resolutions file is empty")
	}

	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	flags := ParseGlobalFlags(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := env.Sync.Resolve(ctx, pid, flags.UserID, resolutions)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	if output.Format(flags.Output) != output.FormatTable {
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, res)
	}

	fmt.Printf("Applied %d of %d resolutions\n", res.Applied, len(resolutions))
	return nil
}
