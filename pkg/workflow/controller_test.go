package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/repository"
	"github.com/m-mizutani/weeknote/pkg/usecase/summary"
	"github.com/m-mizutani/weeknote/pkg/workflow"
	"google.golang.org/genai"
)

// spyRepo counts writes on top of the in-memory repository.
type spyRepo struct {
	*repository.Memory
	mu        sync.Mutex
	creates   int
	inputs    int
	summaries int
}

func newSpyRepo() *spyRepo {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	n := 0
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return &spyRepo{Memory: repository.NewMemory(repository.WithClock(clock))}
}

func (r *spyRepo) CreateTeam(ctx context.Context, name string) (*model.Team, error) {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	return r.Memory.CreateTeam(ctx, name)
}

func (r *spyRepo) AddWeeklyInput(ctx context.Context, teamID model.TeamID, input *model.WeeklyInput) error {
	r.mu.Lock()
	r.inputs++
	r.mu.Unlock()
	return r.Memory.AddWeeklyInput(ctx, teamID, input)
}

func (r *spyRepo) AddSummary(ctx context.Context, teamID model.TeamID, s *model.Summary) error {
	r.mu.Lock()
	r.summaries++
	r.mu.Unlock()
	return r.Memory.AddSummary(ctx, teamID, s)
}

type mockGemini struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		for _, p := range c.Parts {
			m.prompts = append(m.prompts, p.Text)
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(m.text, genai.RoleModel)}},
	}, nil
}

var fixedNow = func() time.Time { return time.Date(2026, 2, 24, 9, 0, 0, 0, time.UTC) }

func newController(t *testing.T, repo repository.Repository, gemini *mockGemini, opts ...workflow.Option) *workflow.Controller {
	t.Helper()
	input := workflow.NewInput{Repo: repo, Now: fixedNow}
	if gemini != nil {
		input.Summarizer = summary.NewSummarizer(gemini)
	}
	c := workflow.New(input, opts...)
	t.Cleanup(c.Close)
	return c
}

func createTeam(t *testing.T, c *workflow.Controller, name string) *model.Team {
	t.Helper()
	ctx := context.Background()
	c.SetTeamName(name)
	team, err := c.CreateTeam(ctx)
	gt.NoError(t, err)
	gt.NoError(t, c.Ready(ctx))
	return team
}

func addInput(t *testing.T, c *workflow.Controller, member, update string) {
	t.Helper()
	c.SetMemberName(member)
	c.SetUpdate(update)
	gt.NoError(t, c.AddWeeklyInput(context.Background()))
}

func TestDefaultWeekKey(t *testing.T) {
	c := newController(t, newSpyRepo(), nil)
	gt.Equal(t, c.State().WeekKey, "2026-W09")
}

func TestCreateTeamValidation(t *testing.T) {
	for _, name := range []string{"", "   "} {
		t.Run("name="+name, func(t *testing.T) {
			repo := newSpyRepo()
			c := newController(t, repo, nil)
			c.SetTeamName(name)

			_, err := c.CreateTeam(context.Background())
			gt.True(t, errors.Is(err, model.ErrValidation))
			gt.Equal(t, repo.creates, 0)

			st := c.State()
			gt.S(t, st.Error).Contains("team name is required")
			gt.V(t, st.ActiveTeam).Nil()
		})
	}
}

func TestCreateTeamWithoutStore(t *testing.T) {
	storeErr := goerr.Wrap(model.ErrConfiguration, "missing configuration: WEEKNOTE_FIREBASE_API_KEY")
	c := workflow.New(workflow.NewInput{StoreError: storeErr, Now: fixedNow})
	c.SetTeamName("Squad")

	_, err := c.CreateTeam(context.Background())
	gt.True(t, errors.Is(err, model.ErrConfiguration))
	gt.S(t, c.State().Error).Contains("WEEKNOTE_FIREBASE_API_KEY")

	c.SetMemberName("Ana")
	c.SetUpdate("Shipped X")
	err = c.AddWeeklyInput(context.Background())
	gt.True(t, errors.Is(err, model.ErrPrecondition))
}

func TestCreateTeam(t *testing.T) {
	repo := newSpyRepo()
	c := newController(t, repo, nil)

	team := createTeam(t, c, "  Squad ")
	gt.Equal(t, team.Name, "Squad")
	gt.Equal(t, repo.creates, 1)

	st := c.State()
	gt.V(t, st.ActiveTeam).NotNil()
	gt.Equal(t, st.ActiveTeam.ID, team.ID)
	gt.Equal(t, st.TeamName, "")
	gt.Equal(t, st.Error, "")
	gt.A(t, st.Entries).Length(0)
	gt.Equal(t, repo.Listeners(), 2)
}

func TestSelectTeam(t *testing.T) {
	ctx := context.Background()
	repo := newSpyRepo()
	existing, err := repo.Memory.CreateTeam(ctx, "Existing")
	gt.NoError(t, err)
	gt.NoError(t, repo.Memory.AddWeeklyInput(ctx, existing.ID, &model.WeeklyInput{MemberName: "Ana", Update: "Shipped X", WeekKey: "2026-W09"}))

	c := newController(t, repo, nil)
	team, err := c.SelectTeam(ctx, existing.ID)
	gt.NoError(t, err)
	gt.NoError(t, c.Ready(ctx))
	gt.Equal(t, team.Name, "Existing")
	gt.A(t, c.WeekEntries()).Length(1)

	_, err = c.SelectTeam(ctx, model.TeamID("missing"))
	gt.True(t, errors.Is(err, model.ErrTeamNotFound))

	_, err = c.SelectTeam(ctx, model.TeamID(" "))
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestReadyWithoutTeam(t *testing.T) {
	c := newController(t, newSpyRepo(), nil)
	err := c.Ready(context.Background())
	gt.True(t, errors.Is(err, model.ErrPrecondition))
}

func TestAddWeeklyInputWithoutTeam(t *testing.T) {
	repo := newSpyRepo()
	c := newController(t, repo, nil)
	c.SetMemberName("Ana")
	c.SetUpdate("Shipped X")

	err := c.AddWeeklyInput(context.Background())
	gt.True(t, errors.Is(err, model.ErrPrecondition))
	gt.S(t, c.State().Error).Contains("create a team first")
	gt.Equal(t, repo.inputs, 0)
}

func TestAddWeeklyInputValidation(t *testing.T) {
	testCases := []struct {
		name   string
		member string
		update string
	}{
		{"empty member", "", "Shipped X"},
		{"blank member", "  ", "Shipped X"},
		{"empty update", "Ana", ""},
		{"blank update", "Ana", "\t\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newSpyRepo()
			c := newController(t, repo, nil)
			createTeam(t, c, "Squad")

			c.SetMemberName(tc.member)
			c.SetUpdate(tc.update)
			err := c.AddWeeklyInput(context.Background())
			gt.True(t, errors.Is(err, model.ErrValidation))
			gt.Equal(t, repo.inputs, 0)
		})
	}
}

func TestAddWeeklyInput(t *testing.T) {
	repo := newSpyRepo()
	c := newController(t, repo, nil)
	createTeam(t, c, "Squad")

	c.SetWeekKey("2026-W10")
	addInput(t, c, " Ana ", " Shipped X ")

	st := c.State()
	gt.Equal(t, st.Update, "")
	gt.Equal(t, st.MemberName, " Ana ")
	gt.Equal(t, st.WeekKey, "2026-W10")
	gt.A(t, st.Entries).Length(1)
	gt.Equal(t, st.Entries[0].MemberName, "Ana")
	gt.Equal(t, st.Entries[0].Update, "Shipped X")
	gt.Equal(t, st.Entries[0].WeekKey, "2026-W10")

	// member name persists for the next entry
	c.SetUpdate("Reviewed Y")
	gt.NoError(t, c.AddWeeklyInput(context.Background()))
	st = c.State()
	gt.A(t, st.Entries).Length(2)
	gt.Equal(t, st.Entries[0].Update, "Reviewed Y")
	gt.Equal(t, repo.inputs, 2)
}

func TestWeekKeyIsNotValidated(t *testing.T) {
	c := newController(t, newSpyRepo(), nil)
	createTeam(t, c, "Squad")

	c.SetWeekKey("sprint 42")
	addInput(t, c, "Ana", "Shipped X")

	entries := c.WeekEntries()
	gt.A(t, entries).Length(1)
	gt.Equal(t, entries[0].WeekKey, "sprint 42")
}

func TestWeekEntriesFollowSelectedWeek(t *testing.T) {
	c := newController(t, newSpyRepo(), nil)
	createTeam(t, c, "Squad")

	c.SetWeekKey("2026-W09")
	addInput(t, c, "Ana", "Shipped X")
	c.SetWeekKey("2026-W10")
	addInput(t, c, "Bo", "Fixed Y")

	gt.A(t, c.WeekEntries()).Length(1)
	gt.Equal(t, c.WeekEntries()[0].MemberName, "Bo")

	c.SetWeekKey("2026-W09")
	gt.A(t, c.WeekEntries()).Length(1)
	gt.Equal(t, c.WeekEntries()[0].MemberName, "Ana")
	gt.A(t, c.State().Entries).Length(2)
}

func TestGenerateSummaryWithoutTeam(t *testing.T) {
	repo := newSpyRepo()
	gemini := &mockGemini{text: "summary"}
	c := newController(t, repo, gemini)

	_, err := c.GenerateSummary(context.Background())
	gt.True(t, errors.Is(err, model.ErrPrecondition))
	gt.Equal(t, repo.summaries, 0)
	gt.A(t, gemini.prompts).Length(0)
}

func TestGenerateSummaryWithoutEntries(t *testing.T) {
	repo := newSpyRepo()
	gemini := &mockGemini{text: "summary"}
	c := newController(t, repo, gemini)
	createTeam(t, c, "Squad")

	c.SetWeekKey("2026-W08")
	addInput(t, c, "Ana", "Old news")
	c.SetWeekKey("2026-W09")

	_, err := c.GenerateSummary(context.Background())
	gt.True(t, errors.Is(err, model.ErrPrecondition))
	gt.S(t, c.State().Error).Contains("add at least one update first")
	gt.Equal(t, repo.summaries, 0)
	gt.A(t, gemini.prompts).Length(0)
}

func TestGenerateSummary(t *testing.T) {
	repo := newSpyRepo()
	gemini := &mockGemini{text: "Wins: X shipped"}

	var mu sync.Mutex
	var loading []bool
	c := newController(t, repo, gemini, workflow.WithOnChange(func(s workflow.State) {
		mu.Lock()
		defer mu.Unlock()
		if len(loading) == 0 || loading[len(loading)-1] != s.Loading {
			loading = append(loading, s.Loading)
		}
	}))
	createTeam(t, c, "Squad")

	c.SetWeekKey("2026-W09")
	addInput(t, c, "Ana", "Shipped X")
	c.SetWeekKey("2026-W10")
	addInput(t, c, "Bo", "Other week")
	c.SetWeekKey("2026-W09")

	result, err := c.GenerateSummary(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, result.Content, "Wins: X shipped")
	gt.Equal(t, result.WeekKey, "2026-W09")
	gt.Equal(t, repo.summaries, 1)

	gt.A(t, gemini.prompts).Length(1)
	gt.S(t, gemini.prompts[0]).Contains("- Ana: Shipped X")
	gt.S(t, gemini.prompts[0]).Contains("2026-W09")
	gt.S(t, gemini.prompts[0]).Contains("Squad")
	gt.S(t, gemini.prompts[0]).NotContains("Other week")

	st := c.State()
	gt.Equal(t, st.Loading, false)
	gt.Equal(t, st.Error, "")
	gt.A(t, st.WeekSummaries()).Length(1)
	gt.Equal(t, st.WeekSummaries()[0].Content, "Wins: X shipped")

	mu.Lock()
	defer mu.Unlock()
	gt.A(t, loading).Length(3)
	gt.Equal(t, loading[1], true)
	gt.Equal(t, loading[2], false)
}

func TestGenerateSummaryModelFailure(t *testing.T) {
	repo := newSpyRepo()
	gemini := &mockGemini{err: goerr.Wrap(model.ErrModelRequestFailed, "Resource has been exhausted")}
	c := newController(t, repo, gemini)
	createTeam(t, c, "Squad")
	addInput(t, c, "Ana", "Shipped X")

	_, err := c.GenerateSummary(context.Background())
	gt.True(t, errors.Is(err, model.ErrModelRequestFailed))

	st := c.State()
	gt.Equal(t, st.Loading, false)
	gt.S(t, st.Error).Contains("Resource has been exhausted")
	gt.Equal(t, repo.summaries, 0)
	gt.A(t, st.Summaries).Length(0)
}

func TestGenerateSummaryMissingCredential(t *testing.T) {
	repo := newSpyRepo()
	c := newController(t, repo, nil)
	createTeam(t, c, "Squad")
	addInput(t, c, "Ana", "Shipped X")

	_, err := c.GenerateSummary(context.Background())
	gt.True(t, errors.Is(err, model.ErrMissingCredential))
	gt.Equal(t, c.State().Loading, false)
	gt.Equal(t, repo.summaries, 0)
}

func TestErrorSlotIsOverwritten(t *testing.T) {
	c := newController(t, newSpyRepo(), nil)

	_, err := c.CreateTeam(context.Background())
	gt.Error(t, err)
	gt.S(t, c.State().Error).Contains("team name is required")

	createTeam(t, c, "Squad")
	gt.Equal(t, c.State().Error, "")

	c.SetMemberName("")
	c.SetUpdate("x")
	gt.Error(t, c.AddWeeklyInput(context.Background()))
	gt.S(t, c.State().Error).Contains("member name and update are required")
	gt.S(t, c.State().Error).NotContains("team name")
}

func TestSwitchTeamReplacesCache(t *testing.T) {
	repo := newSpyRepo()
	c := newController(t, repo, nil)

	createTeam(t, c, "First")
	addInput(t, c, "Ana", "First team work")

	second := createTeam(t, c, "Second")
	st := c.State()
	gt.Equal(t, st.ActiveTeam.ID, second.ID)
	gt.A(t, st.Entries).Length(0)
	gt.Equal(t, repo.Listeners(), 2)

	addInput(t, c, "Bo", "Second team work")
	st = c.State()
	gt.A(t, st.Entries).Length(1)
	gt.Equal(t, st.Entries[0].MemberName, "Bo")
}

func TestCloseDetachesSubscriptions(t *testing.T) {
	repo := newSpyRepo()
	c := workflow.New(workflow.NewInput{Repo: repo, Now: fixedNow})
	createTeam(t, c, "Squad")
	gt.Equal(t, repo.Listeners(), 2)

	c.Close()
	gt.Equal(t, repo.Listeners(), 0)
}

func TestFilterByWeek(t *testing.T) {
	entry := func(id, week string) *model.WeeklyInput {
		return &model.WeeklyInput{ID: id, WeekKey: week}
	}
	ids := func(entries []*model.WeeklyInput) []string {
		out := []string{}
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	testCases := []struct {
		name    string
		entries []*model.WeeklyInput
		weekKey string
		want    []string
	}{
		{
			name:    "interleaved weeks keep order",
			entries: []*model.WeeklyInput{entry("a", "2026-W10"), entry("b", "2026-W11"), entry("c", "2026-W10"), entry("d", "2026-W10")},
			weekKey: "2026-W10",
			want:    []string{"a", "c", "d"},
		},
		{
			name:    "nil input",
			entries: nil,
			weekKey: "2026-W10",
			want:    []string{},
		},
		{
			name:    "no match",
			entries: []*model.WeeklyInput{entry("a", "2026-W09"), entry("b", "2026-W11")},
			weekKey: "2026-W10",
			want:    []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := workflow.FilterByWeek(tc.entries, tc.weekKey)
			gt.True(t, got != nil)
			gt.Equal(t, ids(got), tc.want)
		})
	}
}

func TestOldTeamWritesAreIgnored(t *testing.T) {
	ctx := context.Background()
	repo := newSpyRepo()
	c := newController(t, repo, nil)

	first := createTeam(t, c, "First")
	createTeam(t, c, "Second")
	addInput(t, c, "Bo", "Second team work")
	before := c.State()
	gt.A(t, before.Entries).Length(1)

	gt.NoError(t, repo.Memory.AddWeeklyInput(ctx, first.ID, &model.WeeklyInput{MemberName: "Ana", Update: "Late write", WeekKey: before.WeekKey}))
	gt.NoError(t, repo.Memory.AddSummary(ctx, first.ID, &model.Summary{WeekKey: before.WeekKey, Content: "Late summary"}))

	after := c.State()
	gt.A(t, after.Entries).Length(1)
	gt.Equal(t, after.Entries[0].MemberName, "Bo")
	gt.A(t, after.Summaries).Length(0)
	gt.Equal(t, after.ActiveTeam.Name, "Second")
}

// blockingGemini holds every request until release is closed.
type blockingGemini struct {
	started chan struct{}
	release chan struct{}
}

func (m *blockingGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.started <- struct{}{}
	<-m.release
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText("done", genai.RoleModel)}},
	}, nil
}

func TestGenerateSummaryInProgress(t *testing.T) {
	ctx := context.Background()
	repo := newSpyRepo()
	gemini := &blockingGemini{started: make(chan struct{}, 1), release: make(chan struct{})}
	c := workflow.New(workflow.NewInput{Repo: repo, Summarizer: summary.NewSummarizer(gemini), Now: fixedNow})
	t.Cleanup(c.Close)
	createTeam(t, c, "Squad")
	addInput(t, c, "Ana", "Shipped X")

	done := make(chan error, 1)
	go func() {
		_, err := c.GenerateSummary(ctx)
		done <- err
	}()
	<-gemini.started
	gt.True(t, c.State().Loading)

	_, err := c.GenerateSummary(ctx)
	gt.True(t, errors.Is(err, model.ErrPrecondition))
	gt.S(t, err.Error()).Contains("already in progress")

	close(gemini.release)
	gt.NoError(t, <-done)
	gt.Equal(t, c.State().Loading, false)
	gt.Equal(t, repo.summaries, 1)
}

func TestGenerateSummaryPreconditionResetsLoading(t *testing.T) {
	c := newController(t, newSpyRepo(), &mockGemini{text: "x"})
	createTeam(t, c, "Squad")

	_, err := c.GenerateSummary(context.Background())
	gt.True(t, errors.Is(err, model.ErrPrecondition))
	gt.Equal(t, c.State().Loading, false)

	addInput(t, c, "Ana", "Shipped X")
	_, err = c.GenerateSummary(context.Background())
	gt.NoError(t, err)
}
