package workflow

import "github.com/m-mizutani/weeknote/pkg/model"

// State is a snapshot of the workflow. Error and Loading are single slots:
// every operation clears Error when it starts and overwrites it on failure.
type State struct {
	ActiveTeam *model.Team

	// form fields
	TeamName   string
	MemberName string
	Update     string
	WeekKey    string

	Entries   []*model.WeeklyInput
	Summaries []*model.Summary

	Loading bool
	Error   string
}

// WeekEntries returns the cached entries of the selected week.
func (s State) WeekEntries() []*model.WeeklyInput {
	return FilterByWeek(s.Entries, s.WeekKey)
}

// WeekSummaries returns the cached summaries of the selected week.
func (s State) WeekSummaries() []*model.Summary {
	return FilterSummariesByWeek(s.Summaries, s.WeekKey)
}

// FilterByWeek returns the entries whose week key equals weekKey, preserving
// their relative order.
func FilterByWeek(entries []*model.WeeklyInput, weekKey string) []*model.WeeklyInput {
	out := make([]*model.WeeklyInput, 0, len(entries))
	for _, e := range entries {
		if e.WeekKey == weekKey {
			out = append(out, e)
		}
	}
	return out
}

func FilterSummariesByWeek(summaries []*model.Summary, weekKey string) []*model.Summary {
	out := make([]*model.Summary, 0, len(summaries))
	for _, s := range summaries {
		if s.WeekKey == weekKey {
			out = append(out, s)
		}
	}
	return out
}

func (s State) clone() State {
	c := s
	if s.ActiveTeam != nil {
		team := *s.ActiveTeam
		c.ActiveTeam = &team
	}
	c.Entries = append([]*model.WeeklyInput(nil), s.Entries...)
	c.Summaries = append([]*model.Summary(nil), s.Summaries...)
	return c
}
