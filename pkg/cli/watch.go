package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
	"github.com/m-mizutani/weeknote/pkg/workflow"
	"github.com/urfave/cli/v3"
)

func watchCommand() *cli.Command {
	var (
		cfg    config
		teamID model.TeamID
	)

	flags := []cli.Flag{
		teamIDFlag(&teamID),
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "watch",
		Usage: "Print updates and summaries of a team as they arrive",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			p := newSnapshotPrinter(c.Root().Writer)
			ctrl, err := selectTeam(ctx, b, teamID, "", workflow.WithOnChange(p.print))
			if err != nil {
				return err
			}
			defer ctrl.Close()

			logging.From(ctx).Info("watching team", "team_id", teamID)
			<-ctx.Done()
			return nil
		},
	}
}

// snapshotPrinter prints entries and summaries it has not printed yet.
type snapshotPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	seen map[string]struct{}
}

func newSnapshotPrinter(w io.Writer) *snapshotPrinter {
	return &snapshotPrinter{w: w, seen: make(map[string]struct{})}
}

func (p *snapshotPrinter) print(st workflow.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if st.Error != "" && !p.markSeen("error:"+st.Error) {
		fmt.Fprintf(p.w, "%s %s\n", red("Error:"), st.Error)
	}

	// snapshots are newest first; print oldest first
	for i := len(st.Entries) - 1; i >= 0; i-- {
		e := st.Entries[i]
		if p.markSeen("input:" + e.ID) {
			continue
		}
		fmt.Fprintf(p.w, "%s %s: %s\n", cyan("["+e.WeekKey+"]"), e.MemberName, e.Update)
	}
	for i := len(st.Summaries) - 1; i >= 0; i-- {
		s := st.Summaries[i]
		if p.markSeen("summary:" + s.ID) {
			continue
		}
		fmt.Fprintf(p.w, "%s\n%s\n", green("## summary "+s.WeekKey), s.Content)
	}
}

// markSeen records key and reports whether it was already recorded.
func (p *snapshotPrinter) markSeen(key string) bool {
	if _, ok := p.seen[key]; ok {
		return true
	}
	p.seen[key] = struct{}{}
	return false
}
