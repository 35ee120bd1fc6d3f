// Package command provides CLI command definitions for lexsync.
package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lexsync/lexsync-go/internal/config"
	"github.com/lexsync/lexsync-go/internal/infra/buildinfo"
	"github.com/lexsync/lexsync-go/internal/infra/confloader"
)

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "lexsync",
		Usage:   "LexSync key synchronization and versioning tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PushCommand(),
			PullCommand(),
			ResolveCommand(),
			HistoryCommand(),
			SnapshotCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			c.App.Metadata["config"] = cfg
			return nil
		},
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file path",
			EnvVars: []string{"LEXSYNC_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Override storage.data_dir",
		},
		&cli.StringFlag{
			Name:  "blob-dir",
			Usage: "Override storage.blob_dir",
		},
		&cli.Int64Flag{
			Name:    "project",
			Aliases: []string{"p"},
			Usage:   "Project ID to operate on",
			EnvVars: []string{"LEXSYNC_PROJECT"},
		},
		&cli.Int64Flag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "Acting user ID, recorded in history and snapshots",
			EnvVars: []string{"LEXSYNC_USER"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	ProjectID int64
	UserID    int64

	// Output format
	Output string // table, json, yaml
	Wide   bool

	// Other
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		ProjectID: c.Int64("project"),
		UserID:    c.Int64("user"),
		Output:    c.String("output"),
		Wide:      c.Bool("wide"),
		Verbose:   c.Bool("verbose"),
	}
}

// loadConfig builds the effective configuration from defaults, the
// optional config file, environment variables and flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if dir := c.String("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if dir := c.String("blob-dir"); dir != "" {
		cfg.Storage.BlobDir = dir
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "text"
	}

	return cfg, nil
}

// getConfig retrieves the loaded configuration from context.
func getConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata["config"].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
