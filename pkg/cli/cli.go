package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

type Option func(*cli.Command)

// WithWriter redirects command output.
func WithWriter(w io.Writer) Option {
	return func(cmd *cli.Command) {
		cmd.Writer = w
	}
}

// WithReader replaces the input of interactive commands.
func WithReader(r io.Reader) Option {
	return func(cmd *cli.Command) {
		cmd.Reader = r
	}
}

func Run(ctx context.Context, argv []string, opts ...Option) *Error {
	if err := loadEnvFile(argv); err != nil {
		return &Error{Code: 1, Message: err.Error()}
	}

	cmd := &cli.Command{
		Name:  "weeknote",
		Usage: "Collect weekly team updates and summarize them with Gemini",
		Commands: []*cli.Command{
			weekCommand(),
			teamCommand(),
			inputCommand(),
			summaryCommand(),
			watchCommand(),
			sessionCommand(),
			mcpCommand(),
		},
	}
	for _, opt := range opts {
		opt(cmd)
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

const defaultEnvFile = ".env"

// loadEnvFile loads the file named by --env-file before flags are parsed so
// that its values act as environment sources. Variables already set in the
// environment win. A missing file is ignored.
func loadEnvFile(argv []string) error {
	path := defaultEnvFile
	for i, arg := range argv {
		switch {
		case arg == "--env-file" && i+1 < len(argv):
			path = argv[i+1]
		case strings.HasPrefix(arg, "--env-file="):
			path = strings.TrimPrefix(arg, "--env-file=")
		}
	}

	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return goerr.Wrap(err, "failed to load env file", goerr.V("path", path))
	}
	return nil
}
