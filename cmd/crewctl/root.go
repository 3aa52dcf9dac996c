package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/okian/crewboard/internal/app"
	"github.com/okian/crewboard/internal/config"
	"github.com/okian/crewboard/internal/report"
	"github.com/okian/crewboard/pkg/logger"
)

// reporter is the part of the service the commands use.
type reporter interface {
	Pages() []app.PageInfo
	Report(ctx context.Context, page string, q report.Query) (*report.Report, error)
}

// serviceFactory starts a reporter and returns a function that stops it.
type serviceFactory func(ctx context.Context) (reporter, func(), error)

// newServiceFromConfig loads configuration the same way the server does.
func newServiceFromConfig(ctx context.Context) (reporter, func(), error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return nil, nil, err
	}
	svc := app.New(append(app.FromConfig(cfg), app.WithLogger(logger.Named("crewctl")))...)
	if err := svc.Start(ctx); err != nil {
		return nil, nil, err
	}
	return svc, svc.Stop, nil
}

func newRootCmd(factory serviceFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "crewctl",
		Short: "Build crewboard reports from the terminal",
		Long: `crewctl reads the team spreadsheets and prints the same reports the
dashboard shows. Configuration is read from CREW_CONFIG and CREW_* variables.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newPagesCmd(factory),
		newReportCmd(factory),
		newExportCmd(factory),
	)
	return root
}

// withService runs fn with a started reporter.
func withService(cmd *cobra.Command, factory serviceFactory, fn func(reporter) error) error {
	svc, stop, err := factory(cmd.Context())
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer stop()
	return fn(svc)
}
