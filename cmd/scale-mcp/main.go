package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/ironsheep/sheet-scale-mcp/internal/batch"
	"github.com/ironsheep/sheet-scale-mcp/internal/config"
	"github.com/ironsheep/sheet-scale-mcp/internal/diagnostics"
	pageimg "github.com/ironsheep/sheet-scale-mcp/internal/imaging"
	"github.com/ironsheep/sheet-scale-mcp/internal/logging"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
	"github.com/ironsheep/sheet-scale-mcp/internal/server"
	"github.com/ironsheep/sheet-scale-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// A missing .env is fine; the environment alone is enough.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(2)
	}

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "scale-mcp %s\n  Build time: %s\n  Git commit: %s\n", Version, BuildTime, GitCommit)
	}

	return &cli.App{
		Name:    "scale-mcp",
		Usage:   "measure staff line thickness, interline and beam thickness of scanned music pages",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"SCALE_MCP_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides the configuration)",
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the MCP server on stdin/stdout (default)",
				Action: serveAction,
			},
			{
				Name:      "estimate",
				Usage:     "estimate the scale of page images",
				ArgsUsage: "FILE...",
				Flags: append(pageFlags(),
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "pages estimated in parallel"},
					&cli.StringFlag{Name: "cache", Usage: "calibration cache database"},
					&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "ask before removing a page with an implausible interline"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json, yaml or text (text on a terminal, json otherwise)"},
					&cli.IntFlag{Name: "interline", Usage: "pinned interline, in pixels"},
					&cli.IntFlag{Name: "line", Usage: "pinned staff line thickness, in pixels"},
					&cli.IntFlag{Name: "beam", Usage: "pinned beam thickness, in pixels"},
				),
				Action: estimateAction,
			},
			{
				Name:      "plot",
				Usage:     "draw the run-length histograms of page images",
				ArgsUsage: "FILE...",
				Flags: append(pageFlags(),
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: ".", Usage: "output directory"},
				),
				Action: plotAction,
			},
		},
	}
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "threshold", Aliases: []string{"t"}, Usage: "binarization gray level (1-255)"},
	}
}

// setup loads the configuration and builds the logger.
// Command line flags override the configuration.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, cli.Exit(err, 2)
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("threshold") {
		cfg.Level = c.Int("threshold")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("cache") {
		cfg.CachePath = c.String("cache")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, cli.Exit(err, 2)
	}

	// Logs go to stderr: stdout belongs to the MCP protocol and to reports.
	return cfg, logging.New(cfg.LogLevel, os.Stderr), nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.CachePath == "" {
		return nil, nil
	}
	st, err := store.Open(cfg.CachePath)
	if err != nil {
		return nil, cli.Exit(err, 2)
	}
	return st, nil
}

func serveAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	logger.Debug("Scale MCP server starting", "version", Version, "built", BuildTime, "commit", GitCommit)

	srv := server.New(server.Options{
		Scale:   cfg.Scale,
		Level:   uint8(cfg.Level),
		Store:   st,
		Version: Version,
	}, logger)
	return srv.Run()
}

func estimateAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no page given", 2)
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	format := c.String("format")
	if format == "" {
		format = "json"
		if term.IsTerminal(int(os.Stdout.Fd())) {
			format = "text"
		}
	}

	var decider scale.RemovalDecider = scale.BatchDecider{}
	if c.Bool("interactive") {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			decider = newPromptDecider(os.Stdin, os.Stderr)
		} else {
			logger.Warn("--interactive needs a terminal on stdin, implausible pages are removed")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	proc := batch.NewProcessor(
		scale.NewEstimator(cfg.Scale, logger, decider),
		batch.Options{
			Workers: cfg.Workers,
			Level:   uint8(cfg.Level),
			Store:   st,
			Pinned: scale.Pinned{
				Interline: c.Int("interline"),
				Line:      c.Int("line"),
				Beam:      c.Int("beam"),
			},
		},
		logger,
	)

	report, runErr := proc.Run(ctx, c.Args().Slice())
	if err := writeReport(c.App.Writer, report, format); err != nil {
		return cli.Exit(err, 2)
	}
	if runErr != nil {
		return cli.Exit(runErr, 130)
	}

	if _, invalid, _ := report.Counts(); invalid > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d pages invalid", invalid, len(report.Results)), 1)
	}
	return nil
}

func plotAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no page given", 2)
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	outDir := c.String("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return cli.Exit(err, 2)
	}

	est := scale.NewEstimator(cfg.Scale, logger, nil)
	for _, path := range c.Args().Slice() {
		table, err := pageimg.DecodeRuns(path, uint8(cfg.Level))
		if err != nil {
			return cli.Exit(err, 1)
		}
		id := filepath.Base(path)

		// A failed estimation still has histograms worth drawing.
		snap, _ := est.Inspect(scale.Page{ID: id, Runs: table})
		chart, err := diagnostics.Render(snap, diagnostics.DefaultOptions())
		if err != nil {
			return cli.Exit(fmt.Errorf("%s: %w", id, err), 1)
		}

		target := filepath.Join(outDir, strings.TrimSuffix(id, filepath.Ext(id))+"-scale.png")
		if err := imaging.Save(chart, target); err != nil {
			return cli.Exit(err, 1)
		}
		diagnostics.WriteSummary(c.App.Writer, snap)
		fmt.Fprintf(c.App.Writer, "  chart: %s\n", target)
	}
	return nil
}
