package summary

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
)

//go:embed prompt/summary.md
var summaryPromptRaw string

var summaryPromptTmpl = template.Must(template.New("summary").Parse(summaryPromptRaw))

// BuildPrompt renders the summary instruction for one team and week. Updates
// appear one per line as "- {memberName}: {update}" in the given order.
func BuildPrompt(teamName, weekKey string, updates []model.Update) (string, error) {
	var buf bytes.Buffer
	if err := summaryPromptTmpl.Execute(&buf, map[string]any{
		"TeamName": teamName,
		"WeekKey":  weekKey,
		"Updates":  updates,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute summary prompt template")
	}
	return buf.String(), nil
}
