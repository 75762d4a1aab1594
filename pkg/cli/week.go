package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/urfave/cli/v3"
)

func weekCommand() *cli.Command {
	var date string

	return &cli.Command{
		Name:  "week",
		Usage: "Print the ISO week key of a date",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "date",
				Usage:       "Date in YYYY-MM-DD (default: today)",
				Destination: &date,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if date == "" {
				fmt.Fprintln(c.Root().Writer, model.CurrentWeekKey(time.Now))
				return nil
			}

			t, err := time.Parse(time.DateOnly, date)
			if err != nil {
				return goerr.Wrap(model.ErrValidation, "date must be YYYY-MM-DD", goerr.V("date", date))
			}
			fmt.Fprintln(c.Root().Writer, model.ComputeWeekKey(t))
			return nil
		},
	}
}
