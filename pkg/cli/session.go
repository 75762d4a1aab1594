package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/workflow"
	"github.com/urfave/cli/v3"
)

const spinnerInterval = 100 * time.Millisecond

func sessionCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "session",
		Usage: "Interactive session: create a team, collect updates and summarize them",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, b := cfg.open(ctx)
			defer b.Shutdown()

			ctrl := b.Controller()
			defer ctrl.Close()

			sh := &shell{ctrl: ctrl, w: c.Root().Writer}
			if f, ok := c.Root().Reader.(*os.File); ok && readline.IsTerminal(int(f.Fd())) {
				return sh.runInteractive(ctx)
			}
			return sh.runScript(ctx, c.Root().Reader)
		},
	}
}

// errExit ends a session.
var errExit = goerr.New("exit")

type shell struct {
	ctrl *workflow.Controller
	w    io.Writer
	spin *spinner.Spinner
}

func (s *shell) runInteractive(ctx context.Context) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("weeknote> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create readline")
	}
	defer rl.Close()

	s.w = rl.Stdout()
	s.spin = spinner.New(spinner.CharSets[14], spinnerInterval, spinner.WithWriter(rl.Stderr()))
	s.spin.Suffix = " generating summary..."
	s.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		if s.handle(ctx, line) {
			return nil
		}
	}
}

func (s *shell) runScript(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if s.handle(ctx, scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read input")
	}
	return nil
}

// handle runs one line and reports whether the session should end.
func (s *shell) handle(ctx context.Context, line string) bool {
	err := s.execute(ctx, line)
	if errors.Is(err, errExit) {
		return true
	}
	if err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(s.w, "%s %v\n", red("Error:"), err)
	}
	return false
}

func (s *shell) execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "team":
		return s.cmdTeam(ctx, rest)
	case "member":
		s.ctrl.SetMemberName(rest)
		fmt.Fprintf(s.w, "Member: %s\n", rest)
	case "week":
		if rest != "" {
			s.ctrl.SetWeekKey(rest)
		}
		fmt.Fprintf(s.w, "Week: %s\n", s.ctrl.State().WeekKey)
	case "add":
		s.ctrl.SetUpdate(rest)
		if err := s.ctrl.AddWeeklyInput(ctx); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(s.w, "%s Update added for %s\n", green("✓"), s.ctrl.State().WeekKey)
	case "summarize":
		return s.cmdSummarize(ctx)
	case "entries":
		return printEntries(s.w, s.ctrl.WeekEntries(), formatText)
	case "summaries":
		return printSummaries(s.w, s.ctrl.State().WeekSummaries(), formatText)
	case "state":
		s.printState()
	case "help", "?":
		s.printHelp()
	case "exit", "quit":
		return errExit
	default:
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(s.w, "%s unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), command)
	}
	return nil
}

func (s *shell) cmdTeam(ctx context.Context, args string) error {
	sub, arg, _ := strings.Cut(args, " ")
	arg = strings.TrimSpace(arg)

	var (
		team *model.Team
		err  error
	)
	switch sub {
	case "new":
		s.ctrl.SetTeamName(arg)
		team, err = s.ctrl.CreateTeam(ctx)
	case "use":
		team, err = s.ctrl.SelectTeam(ctx, model.TeamID(arg))
	default:
		return goerr.Wrap(model.ErrValidation, "usage: team new <name> | team use <id>")
	}
	if err != nil {
		return err
	}
	if err := s.ctrl.Ready(ctx); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(s.w, "%s Active team: %s (%s)\n", green("✓"), team.Name, team.ID)
	return nil
}

func (s *shell) cmdSummarize(ctx context.Context) error {
	if s.spin != nil {
		s.spin.Start()
	}
	result, err := s.ctrl.GenerateSummary(ctx)
	if s.spin != nil {
		s.spin.Stop()
	}
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(s.w, "%s\n%s\n", cyan("## "+result.WeekKey), result.Content)
	return nil
}

func (s *shell) printState() {
	st := s.ctrl.State()
	team := "(none)"
	if st.ActiveTeam != nil {
		team = fmt.Sprintf("%s (%s)", st.ActiveTeam.Name, st.ActiveTeam.ID)
	}

	fmt.Fprintf(s.w, "Team:      %s\n", team)
	fmt.Fprintf(s.w, "Member:    %s\n", st.MemberName)
	fmt.Fprintf(s.w, "Week:      %s\n", st.WeekKey)
	fmt.Fprintf(s.w, "Updates:   %d this week, %d total\n", len(st.WeekEntries()), len(st.Entries))
	fmt.Fprintf(s.w, "Summaries: %d this week\n", len(st.WeekSummaries()))
	if st.Loading {
		fmt.Fprintln(s.w, "Loading:   yes")
	}
	if st.Error != "" {
		fmt.Fprintf(s.w, "Error:     %s\n", st.Error)
	}
}

func (s *shell) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(s.w, "\n%s\n", cyan("weeknote"))
	fmt.Fprintln(s.w, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(s.w)
}

func (s *shell) printHelp() {
	commands := []struct {
		name string
		desc string
	}{
		{"team new <name>", "Create a team and make it active"},
		{"team use <id>", "Make an existing team active"},
		{"member <name>", "Set the member name for new updates"},
		{"week [key]", "Show or select the week, e.g. 2026-W10"},
		{"add <text>", "Add an update for the selected week"},
		{"summarize", "Summarize the updates of the selected week"},
		{"entries", "List the updates of the selected week"},
		{"summaries", "List the summaries of the selected week"},
		{"state", "Show the session state"},
		{"exit, quit", "End the session"},
	}

	green := color.New(color.FgGreen).SprintFunc()
	for _, cmd := range commands {
		fmt.Fprintf(s.w, "  %-18s %s\n", green(cmd.name), cmd.desc)
	}
}
