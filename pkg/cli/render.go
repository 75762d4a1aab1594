package cli

import (
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatYAML:
		return nil
	default:
		return goerr.Wrap(model.ErrValidation, "format must be text or yaml", goerr.V("format", format))
	}
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to encode yaml")
	}
	return enc.Close()
}

func printEntries(w io.Writer, entries []*model.WeeklyInput, format string) error {
	if format == formatYAML {
		return printYAML(w, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No updates yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.WeekKey, e.MemberName, e.Update)
	}
	return nil
}

func printSummaries(w io.Writer, summaries []*model.Summary, format string) error {
	if format == formatYAML {
		return printYAML(w, summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(w, "No summaries yet.")
		return nil
	}
	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "## %s (%s)\n%s\n", s.WeekKey, s.CreatedAt.Format("2006-01-02 15:04"), s.Content)
	}
	return nil
}
