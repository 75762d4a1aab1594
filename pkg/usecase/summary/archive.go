package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/adapter"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
)

// Archiver exports summaries as markdown objects.
type Archiver struct {
	storage adapter.Storage
}

func NewArchiver(storage adapter.Storage) *Archiver {
	return &Archiver{storage: storage}
}

// ObjectKey is teams/{teamId}/summaries/{weekKey}/{summaryId}.md
func ObjectKey(teamID model.TeamID, s *model.Summary) string {
	return path.Join("teams", string(teamID), "summaries", s.WeekKey, s.ID+".md")
}

// Render formats a summary as a markdown document.
func Render(team *model.Team, s *model.Summary) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s weekly summary (%s)\n\n", team.Name, s.WeekKey)
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(&buf, "_Generated at %s_\n\n", s.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	buf.WriteString(s.Content)
	if s.Content == "" || s.Content[len(s.Content)-1] != '\n' {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Export writes the given summaries and returns their object keys. Objects
// that already hold the rendered summary are left untouched.
func (a *Archiver) Export(ctx context.Context, team *model.Team, summaries []*model.Summary) ([]string, error) {
	if a == nil || a.storage == nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "archive bucket is not configured")
	}
	if len(summaries) == 0 {
		return nil, goerr.Wrap(model.ErrPrecondition, "no summary to export", goerr.V("team_id", team.ID))
	}

	keys := make([]string, 0, len(summaries))
	for _, s := range summaries {
		key := ObjectKey(team.ID, s)
		doc := Render(team, s)

		current, err := a.storage.ReadObject(ctx, key)
		switch {
		case err == nil && bytes.Equal(current, doc):
			logging.From(ctx).Debug("summary already exported", "key", key)
			keys = append(keys, key)
			continue
		case err != nil && !errors.Is(err, adapter.ErrObjectNotFound):
			return keys, goerr.Wrap(err, "failed to check exported summary", goerr.V("summary_id", s.ID))
		}

		if err := a.storage.WriteObject(ctx, key, "text/markdown; charset=utf-8", doc); err != nil {
			return keys, goerr.Wrap(err, "failed to export summary", goerr.V("summary_id", s.ID))
		}
		logging.From(ctx).Info("summary exported", "key", key)
		keys = append(keys, key)
	}
	return keys, nil
}
