package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/urfave/cli/v3"
)

func teamIDFlag(teamID *model.TeamID) cli.Flag {
	return &cli.StringFlag{
		Name:        "team-id",
		Aliases:     []string{"t"},
		Usage:       "Team ID",
		Sources:     cli.EnvVars("WEEKNOTE_TEAM_ID"),
		Destination: (*string)(teamID),
		Required:    true,
	}
}

func weekFlag(weekKey *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "week",
		Aliases:     []string{"w"},
		Usage:       "Week key such as 2026-W10 (default: current week)",
		Destination: weekKey,
	}
}

func formatFlag(format *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "format",
		Aliases:     []string{"f"},
		Usage:       "Output format (text, yaml)",
		Value:       formatText,
		Destination: format,
	}
}

func inputCommand() *cli.Command {
	return &cli.Command{
		Name:  "input",
		Usage: "Record and list weekly updates",
		Commands: []*cli.Command{
			inputAddCommand(),
			inputListCommand(),
		},
	}
}

func inputAddCommand() *cli.Command {
	var (
		cfg     config
		teamID  model.TeamID
		member  string
		update  string
		weekKey string
	)

	flags := []cli.Flag{
		teamIDFlag(&teamID),
		&cli.StringFlag{
			Name:        "member",
			Aliases:     []string{"m"},
			Usage:       "Member name",
			Sources:     cli.EnvVars("WEEKNOTE_MEMBER"),
			Destination: &member,
		},
		&cli.StringFlag{
			Name:        "update",
			Aliases:     []string{"u"},
			Usage:       "What the member did this week",
			Destination: &update,
		},
		weekFlag(&weekKey),
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "add",
		Usage: "Add a weekly update",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			ctrl, err := selectTeam(ctx, b, teamID, weekKey)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			ctrl.SetMemberName(member)
			ctrl.SetUpdate(update)
			if err := ctrl.AddWeeklyInput(ctx); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Update added for %s\n", ctrl.State().WeekKey)
			return nil
		},
	}
}

func inputListCommand() *cli.Command {
	var (
		cfg     config
		teamID  model.TeamID
		weekKey string
		format  string
		all     bool
	)

	flags := []cli.Flag{
		teamIDFlag(&teamID),
		weekFlag(&weekKey),
		formatFlag(&format),
		&cli.BoolFlag{
			Name:        "all",
			Aliases:     []string{"a"},
			Usage:       "List updates of every week",
			Destination: &all,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List weekly updates, newest first",
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

			entries := ctrl.WeekEntries()
			if all {
				entries = ctrl.State().Entries
			}
			return printEntries(c.Root().Writer, entries, format)
		},
	}
}
