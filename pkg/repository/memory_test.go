package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/repository"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestMemoryCreateAndGetTeam(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	team, err := repo.CreateTeam(ctx, "Squad")
	gt.NoError(t, err)
	gt.True(t, team.ID != "")
	gt.Equal(t, team.Name, "Squad")

	got, err := repo.GetTeam(ctx, team.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Name, "Squad")
	gt.Equal(t, got.CreatedAt, team.CreatedAt)

	_, err = repo.GetTeam(ctx, model.TeamID("missing"))
	gt.True(t, errors.Is(err, model.ErrTeamNotFound))
}

func TestMemoryWeeklyInputSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory(repository.WithClock(tickingClock()))

	team, err := repo.CreateTeam(ctx, "Squad")
	gt.NoError(t, err)

	var snapshots [][]*model.WeeklyInput
	sub, err := repo.SubscribeWeeklyInputs(ctx, team.ID, func(inputs []*model.WeeklyInput, err error) {
		gt.NoError(t, err)
		snapshots = append(snapshots, inputs)
	})
	gt.NoError(t, err)

	// initial load
	gt.A(t, snapshots).Length(1)
	gt.A(t, snapshots[0]).Length(0)

	gt.NoError(t, repo.AddWeeklyInput(ctx, team.ID, &model.WeeklyInput{MemberName: "Ana", Update: "Shipped X", WeekKey: "2026-W10"}))
	gt.NoError(t, repo.AddWeeklyInput(ctx, team.ID, &model.WeeklyInput{MemberName: "Bo", Update: "Fixed Y", WeekKey: "2026-W10"}))

	gt.A(t, snapshots).Length(3)
	latest := snapshots[2]
	gt.A(t, latest).Length(2)
	gt.Equal(t, latest[0].MemberName, "Bo")
	gt.Equal(t, latest[1].MemberName, "Ana")
	gt.True(t, latest[0].CreatedAt.After(latest[1].CreatedAt))
	gt.True(t, latest[0].ID != "")

	sub.Stop()
	gt.NoError(t, repo.AddWeeklyInput(ctx, team.ID, &model.WeeklyInput{MemberName: "Cy", Update: "Late", WeekKey: "2026-W10"}))
	gt.A(t, snapshots).Length(3)
	gt.Equal(t, repo.Listeners(), 0)
}

func TestMemorySummariesAreScopedToTeam(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory(repository.WithClock(tickingClock()))

	squad, err := repo.CreateTeam(ctx, "Squad")
	gt.NoError(t, err)
	other, err := repo.CreateTeam(ctx, "Other")
	gt.NoError(t, err)

	var got []*model.Summary
	calls := 0
	sub, err := repo.SubscribeSummaries(ctx, squad.ID, func(summaries []*model.Summary, err error) {
		calls++
		got = summaries
	})
	gt.NoError(t, err)
	defer sub.Stop()

	gt.NoError(t, repo.AddSummary(ctx, other.ID, &model.Summary{WeekKey: "2026-W10", Content: "other"}))
	gt.Equal(t, calls, 1)

	gt.NoError(t, repo.AddSummary(ctx, squad.ID, &model.Summary{WeekKey: "2026-W10", Content: "first"}))
	gt.NoError(t, repo.AddSummary(ctx, squad.ID, &model.Summary{WeekKey: "2026-W10", Content: "second"}))
	gt.Equal(t, calls, 3)
	gt.A(t, got).Length(2)
	gt.Equal(t, got[0].Content, "second")
}

func TestMemoryWriteToMissingTeam(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	err := repo.AddWeeklyInput(ctx, model.TeamID("missing"), &model.WeeklyInput{MemberName: "Ana", Update: "x"})
	gt.True(t, errors.Is(err, model.ErrTeamNotFound))

	err = repo.AddSummary(ctx, model.TeamID("missing"), &model.Summary{Content: "x"})
	gt.True(t, errors.Is(err, model.ErrTeamNotFound))
}

func TestMemoryCloseDetachesListeners(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	team, err := repo.CreateTeam(ctx, "Squad")
	gt.NoError(t, err)

	calls := 0
	_, err = repo.SubscribeWeeklyInputs(ctx, team.ID, func([]*model.WeeklyInput, error) { calls++ })
	gt.NoError(t, err)
	_, err = repo.SubscribeSummaries(ctx, team.ID, func([]*model.Summary, error) { calls++ })
	gt.NoError(t, err)
	gt.Equal(t, repo.Listeners(), 2)

	gt.NoError(t, repo.Close())
	gt.Equal(t, repo.Listeners(), 0)

	gt.NoError(t, repo.AddWeeklyInput(ctx, team.ID, &model.WeeklyInput{MemberName: "Ana", Update: "x"}))
	gt.Equal(t, calls, 2)
}
