package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/urfave/cli/v3"
)

func teamCommand() *cli.Command {
	return &cli.Command{
		Name:  "team",
		Usage: "Manage teams",
		Commands: []*cli.Command{
			teamCreateCommand(),
			teamShowCommand(),
		},
	}
}

func teamCreateCommand() *cli.Command {
	var (
		cfg  config
		name string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "name",
			Aliases:     []string{"n"},
			Usage:       "Team name",
			Destination: &name,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "create",
		Usage: "Create a team",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			ctrl := b.Controller()
			defer ctrl.Close()

			ctrl.SetTeamName(name)
			team, err := ctrl.CreateTeam(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Team created: %s (%s)\n", team.ID, team.Name)
			return nil
		},
	}
}

func teamShowCommand() *cli.Command {
	var (
		cfg    config
		teamID model.TeamID
		format string
	)

	flags := []cli.Flag{
		teamIDFlag(&teamID),
		formatFlag(&format),
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show a team and its activity",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			ctrl, err := selectTeam(ctx, b, teamID, "")
			if err != nil {
				return err
			}
			defer ctrl.Close()

			st := ctrl.State()
			w := c.Root().Writer
			if format == formatYAML {
				return printYAML(w, map[string]any{
					"team":      st.ActiveTeam,
					"updates":   len(st.Entries),
					"summaries": len(st.Summaries),
				})
			}

			fmt.Fprintf(w, "ID:        %s\n", st.ActiveTeam.ID)
			fmt.Fprintf(w, "Name:      %s\n", st.ActiveTeam.Name)
			fmt.Fprintf(w, "Created:   %s\n", st.ActiveTeam.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Fprintf(w, "Updates:   %d\n", len(st.Entries))
			fmt.Fprintf(w, "Summaries: %d\n", len(st.Summaries))
			return nil
		},
	}
}
