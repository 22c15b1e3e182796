package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/export"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/urfave/cli/v3"
)

const (
	// ExportLogDir specifies where export log files are stored.
	ExportLogDir = "logs/export_logs"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "export",
		Usage: "Export targets and snapshots for offline analysis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "exports",
				Usage:   "Base output directory for export files",
			},
			&cli.DurationFlag{
				Name:    "since",
				Aliases: []string{"s"},
				Value:   72 * time.Hour,
				Usage:   "Export snapshots recorded within this duration",
			},
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "Export description",
			},
			&cli.StringFlag{
				Name:    "formats",
				Aliases: []string{"f"},
				Value:   "sqlite,csv",
				Usage:   "Comma separated list of formats (sqlite, csv)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			// Initialize application with required dependencies
			app, err := setup.InitializeApp(ctx, telemetry.ServiceExport, ExportLogDir)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Cleanup(context.WithoutCancel(ctx))

			// Create timestamped output directory
			outDir := filepath.Join(c.String("output"), time.Now().UTC().Format("2006-01-02_150405"))
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			config := &export.Config{
				Since:       time.Now().Add(-c.Duration("since")),
				Description: c.String("description"),
				Formats:     parseFormats(c.String("formats")),
			}

			data, err := export.New(export.NewStore(app.DB), outDir, config, app.Logger).ExportAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to export data: %w", err)
			}

			fmt.Printf("Exported %d targets, %d precision and %d ranking snapshots to %s\n",
				len(data.Targets), len(data.Precision), len(data.Ranking), outDir)

			return nil
		},
	}

	return app.Run(ctx, os.Args)
}

// parseFormats splits the formats flag.
func parseFormats(value string) []export.Format {
	var formats []export.Format

	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			formats = append(formats, export.Format(part))
		}
	}

	return formats
}
