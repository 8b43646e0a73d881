package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/provscan/internal"
	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/output"
	pkgconfig "github.com/starford/provscan/pkg/config"
)

var version = "dev"

// Exit statuses beyond the generic failure.
const (
	exitNoProvenance = 2
	exitNoPrivilege  = 77 // EX_NOPERM
)

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.Bool("json") {
		cfg.App.Output = output.FormatJSON
	}
	if cmd.IsSet("workers") {
		cfg.Scan.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("db") {
		cfg.Database.Path = cmd.String("db")
	}
	if cmd.IsSet("attribute") {
		cfg.Attribute.Name = cmd.String("attribute")
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func pathArg(cmd *cli.Command) (string, error) {
	if cmd.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one PATH argument, got %d", cmd.NArg())
	}
	return cmd.Args().First(), nil
}

func options(cfg *internal.Config) []internal.Option {
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
}

func scan(ctx context.Context, cmd *cli.Command) error {
	path, err := pathArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunScan(ctx, path, options(cfg)...); err != nil {
		if errors.Is(err, apperr.ErrAttributeAbsent) {
			return fmt.Errorf("no provenance information for %s: %w", path, apperr.ErrAttributeAbsent)
		}
		return err
	}
	return nil
}

func watch(ctx context.Context, cmd *cli.Command) error {
	path, err := pathArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunWatch(ctx, path, options(cfg)...)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunServe(ctx, cmd.String("root"), cmd.String("watch"), options(cfg)...)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, cmd.String("root"), options(cfg)...)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, apperr.ErrAttributeAbsent):
		return exitNoProvenance
	case errors.Is(err, apperr.ErrPrivilegeRequired):
		return exitNoPrivilege
	default:
		return 1
	}
}

func rootFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "root",
		Usage: "Only answer queries for paths under this directory",
		Value: "/",
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "provscan",
		Usage:     "Report which application wrote a file, from its provenance attribute",
		Version:   version,
		ArgsUsage: "PATH",
		Action:    scan,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("PROVSCAN_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of entries probed concurrently",
				Sources: cli.EnvVars("PROVSCAN_WORKERS"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path to the provenance tracking database",
				Sources: cli.EnvVars("PROVSCAN_DB"),
			},
			&cli.StringFlag{
				Name:  "attribute",
				Usage: "Name of the extended attribute carrying the tag",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "watch",
				Usage:     "Scan PATH, then report entries as they are tagged",
				ArgsUsage: "PATH",
				Action:    watch,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serve,
				Flags: []cli.Flag{
					rootFlag(),
					&cli.StringFlag{
						Name:  "watch",
						Usage: "Publish newly tagged entries under this directory to /api/events",
					},
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "HTTP port",
						Sources: cli.EnvVars("PROVSCAN_PORT"),
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
				Flags:  []cli.Flag{rootFlag()},
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(exitCode(err))
	}
}
