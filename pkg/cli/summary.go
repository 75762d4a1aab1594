package cli

import (
	"context"
	"fmt"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/service/backend"
	"github.com/urfave/cli/v3"
)

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Generate, list and export weekly summaries",
		Commands: []*cli.Command{
			summaryGenerateCommand(),
			summaryListCommand(),
			summaryExportCommand(),
		},
	}
}

func summaryGenerateCommand() *cli.Command {
	var (
		cfg     config
		teamID  model.TeamID
		weekKey string
	)

	flags := []cli.Flag{
		teamIDFlag(&teamID),
		weekFlag(&weekKey),
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "generate",
		Usage: "Summarize the updates of a week with Gemini",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			ctrl, err := selectTeam(ctx, b, teamID, weekKey)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			w := c.Root().Writer
			spin := spinner.New(spinner.CharSets[14], spinnerInterval, spinner.WithWriter(c.Root().ErrWriter))
			spin.Suffix = " generating summary..."
			spin.Start()
			result, err := ctrl.GenerateSummary(ctx)
			spin.Stop()
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "## %s\n%s\n", result.WeekKey, result.Content)
			return nil
		},
	}
}

func summaryListCommand() *cli.Command {
	var (
		cfg     config
		teamID  model.TeamID
		weekKey string
		format  string
	)

	flags := []cli.Flag{
		teamIDFlag(&teamID),
		weekFlag(&weekKey),
		formatFlag(&format),
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List the summaries of a week, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			ctrl, err := selectTeam(ctx, b, teamID, weekKey)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			return printSummaries(c.Root().Writer, ctrl.State().WeekSummaries(), format)
		},
	}
}

func summaryExportCommand() *cli.Command {
	var (
		cfg     config
		teamID  model.TeamID
		weekKey string
		bucket  string
	)

	flags := []cli.Flag{
		teamIDFlag(&teamID),
		weekFlag(&weekKey),
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket for exported summaries",
			Sources:     cli.EnvVars(backend.EnvArchiveBucket),
			Destination: &bucket,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export the summaries of a week to Cloud Storage as markdown",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			ctrl, err := selectTeam(ctx, b, teamID, weekKey)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			st := ctrl.State()
			summaries := st.WeekSummaries()
			if len(summaries) == 0 {
				return goerr.Wrap(model.ErrPrecondition, "no summary to export", goerr.V("week_key", st.WeekKey))
			}

			archiver, err := b.Archiver(ctx, bucket)
			if err != nil {
				return err
			}

			keys, err := archiver.Export(ctx, st.ActiveTeam, summaries)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintf(c.Root().Writer, "Exported: %s\n", key)
			}
			return nil
		},
	}
}
