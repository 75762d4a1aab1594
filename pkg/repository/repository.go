package repository

import (
	"context"

	"github.com/m-mizutani/weeknote/pkg/model"
)

// Collection names under teams/{teamId}.
const (
	CollectionTeams        = "teams"
	CollectionWeeklyInputs = "weeklyInputs"
	CollectionSummaries    = "summaries"
)

// WeeklyInputsHandler receives the full list of weekly inputs of a team,
// newest first, on initial load and on every change.
type WeeklyInputsHandler func(inputs []*model.WeeklyInput, err error)

// SummariesHandler receives the full list of summaries of a team, newest
// first, on initial load and on every change.
type SummariesHandler func(summaries []*model.Summary, err error)

// Subscription is a live query. Stop detaches it; once Stop returns no
// further callback is delivered.
type Subscription interface {
	Stop()
}

// Repository defines the interface for team data persistence
type Repository interface {
	// CreateTeam writes a new team with a server-assigned creation time
	CreateTeam(ctx context.Context, name string) (*model.Team, error)

	// GetTeam retrieves a team by ID
	GetTeam(ctx context.Context, id model.TeamID) (*model.Team, error)

	// AddWeeklyInput appends a weekly input under the team
	AddWeeklyInput(ctx context.Context, teamID model.TeamID, input *model.WeeklyInput) error

	// AddSummary appends a summary under the team
	AddSummary(ctx context.Context, teamID model.TeamID, summary *model.Summary) error

	// SubscribeWeeklyInputs opens a live query on the team's weekly inputs
	SubscribeWeeklyInputs(ctx context.Context, teamID model.TeamID, fn WeeklyInputsHandler) (Subscription, error)

	// SubscribeSummaries opens a live query on the team's summaries
	SubscribeSummaries(ctx context.Context, teamID model.TeamID, fn SummariesHandler) (Subscription, error)

	// Close releases the underlying connection
	Close() error
}
