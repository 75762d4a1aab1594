package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/repository"
	"github.com/m-mizutani/weeknote/pkg/usecase/summary"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
)

// Controller holds the state of one workflow session and runs its
// operations. Snapshots from the store arrive on other goroutines, so state
// is guarded by mu; mu is never held while calling the store or the model.
type Controller struct {
	mu sync.Mutex

	repo       repository.Repository
	storeErr   error
	summarizer *summary.Summarizer
	onChange   func(State)

	state State

	// generation identifies the active team; callbacks of older
	// generations are dropped.
	generation      uint64
	subs            []repository.Subscription
	ready           chan struct{}
	entriesLoaded   bool
	summariesLoaded bool
}

// NewInput contains dependencies of a Controller
type NewInput struct {
	// Repo is nil when the store is not configured. StoreError then explains
	// why and is returned by every store operation.
	Repo       repository.Repository
	StoreError error

	// Summarizer may have no model client; summary generation then fails
	// with model.ErrMissingCredential.
	Summarizer *summary.Summarizer

	Now func() time.Time
}

// Option is a functional option for Controller
type Option func(*Controller)

// WithOnChange registers a function called with a new State after every
// change. It runs without the controller lock held.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

func New(input NewInput, opts ...Option) *Controller {
	c := &Controller{
		repo:       input.Repo,
		storeErr:   input.StoreError,
		summarizer: input.Summarizer,
	}
	if c.summarizer == nil {
		c.summarizer = summary.NewSummarizer(nil)
	}

	c.state.WeekKey = model.CurrentWeekKey(input.Now)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// WeekEntries is the filtered view of the cached entries for the selected week.
func (c *Controller) WeekEntries() []*model.WeeklyInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FilterByWeek(c.state.Entries, c.state.WeekKey)
}

func (c *Controller) SetTeamName(name string) {
	c.update(func(s *State) { s.TeamName = name })
}

func (c *Controller) SetMemberName(name string) {
	c.update(func(s *State) { s.MemberName = name })
}

func (c *Controller) SetUpdate(text string) {
	c.update(func(s *State) { s.Update = text })
}

// SetWeekKey selects the week used for new entries, filtering and summaries.
// The key is taken as-is.
func (c *Controller) SetWeekKey(weekKey string) {
	c.update(func(s *State) { s.WeekKey = weekKey })
}

// CreateTeam creates a team from the team name field and makes it active.
func (c *Controller) CreateTeam(ctx context.Context) (*model.Team, error) {
	var name string
	c.update(func(s *State) {
		s.Error = ""
		name = strings.TrimSpace(s.TeamName)
	})

	if name == "" {
		return nil, c.fail(ctx, goerr.Wrap(model.ErrValidation, "team name is required"))
	}
	if err := c.requireStore(); err != nil {
		return nil, c.fail(ctx, err)
	}

	team, err := c.repo.CreateTeam(ctx, name)
	if err != nil {
		return nil, c.fail(ctx, goerr.Wrap(err, "failed to create team", goerr.V("name", name)))
	}
	logging.From(ctx).Info("team created", "team_id", team.ID, "name", team.Name)

	if err := c.activate(ctx, team); err != nil {
		return nil, c.fail(ctx, err)
	}
	c.update(func(s *State) { s.TeamName = "" })

	return team, nil
}

// SelectTeam makes an existing team active.
func (c *Controller) SelectTeam(ctx context.Context, teamID model.TeamID) (*model.Team, error) {
	c.update(func(s *State) { s.Error = "" })

	if strings.TrimSpace(string(teamID)) == "" {
		return nil, c.fail(ctx, goerr.Wrap(model.ErrValidation, "team id is required"))
	}
	if err := c.requireStore(); err != nil {
		return nil, c.fail(ctx, err)
	}

	team, err := c.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, c.fail(ctx, goerr.Wrap(err, "failed to select team", goerr.V("team_id", teamID)))
	}

	if err := c.activate(ctx, team); err != nil {
		return nil, c.fail(ctx, err)
	}
	return team, nil
}

// AddWeeklyInput stores the member name and update fields for the selected
// week. On success only the update field is cleared.
func (c *Controller) AddWeeklyInput(ctx context.Context) error {
	var (
		team           *model.Team
		member, update string
		weekKey        string
	)
	c.update(func(s *State) {
		s.Error = ""
		team = s.ActiveTeam
		member = strings.TrimSpace(s.MemberName)
		update = strings.TrimSpace(s.Update)
		weekKey = s.WeekKey
	})

	if team == nil {
		return c.fail(ctx, goerr.Wrap(model.ErrPrecondition, "create a team first"))
	}
	if err := c.requireStore(); err != nil {
		return c.fail(ctx, err)
	}
	if member == "" || update == "" {
		return c.fail(ctx, goerr.Wrap(model.ErrValidation, "member name and update are required"))
	}

	input := &model.WeeklyInput{
		MemberName: member,
		Update:     update,
		WeekKey:    weekKey,
	}
	if err := c.repo.AddWeeklyInput(ctx, team.ID, input); err != nil {
		return c.fail(ctx, goerr.Wrap(err, "failed to add weekly input", goerr.V("team_id", team.ID)))
	}
	logging.From(ctx).Info("weekly input added", "team_id", team.ID, "member", member, "week_key", weekKey)

	c.update(func(s *State) { s.Update = "" })
	return nil
}

// GenerateSummary summarizes the cached entries of the selected week and
// stores the result. Nothing is stored when any step fails.
func (c *Controller) GenerateSummary(ctx context.Context) (*model.Summary, error) {
	var (
		team    *model.Team
		weekKey string
		entries []*model.WeeklyInput
		busy    bool
	)
	// Loading is checked and claimed in one step.
	c.update(func(s *State) {
		s.Error = ""
		busy = s.Loading
		if busy {
			return
		}
		team = s.ActiveTeam
		weekKey = s.WeekKey
		entries = FilterByWeek(s.Entries, s.WeekKey)
		s.Loading = true
	})

	if busy {
		return nil, c.fail(ctx, goerr.Wrap(model.ErrPrecondition, "summary generation is already in progress"))
	}
	if err := c.checkSummaryInput(team, weekKey, entries); err != nil {
		c.update(func(s *State) { s.Loading = false })
		return nil, c.fail(ctx, err)
	}

	result, err := c.generate(ctx, team, weekKey, entries)
	if err != nil {
		c.update(func(s *State) { s.Loading = false })
		return nil, c.fail(ctx, err)
	}

	c.update(func(s *State) { s.Loading = false })
	logging.From(ctx).Info("summary generated", "team_id", team.ID, "week_key", weekKey, "entries", len(entries))
	return result, nil
}

func (c *Controller) checkSummaryInput(team *model.Team, weekKey string, entries []*model.WeeklyInput) error {
	if team == nil {
		return goerr.Wrap(model.ErrPrecondition, "create a team first")
	}
	if err := c.requireStore(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return goerr.Wrap(model.ErrPrecondition, "add at least one update first", goerr.V("week_key", weekKey))
	}
	return nil
}

func (c *Controller) generate(ctx context.Context, team *model.Team, weekKey string, entries []*model.WeeklyInput) (*model.Summary, error) {
	prompt, err := summary.BuildPrompt(team.Name, weekKey, model.Updates(entries))
	if err != nil {
		return nil, err
	}

	content, err := c.summarizer.Summarize(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result := &model.Summary{WeekKey: weekKey, Content: content}
	if err := c.repo.AddSummary(ctx, team.ID, result); err != nil {
		return nil, goerr.Wrap(err, "failed to save summary", goerr.V("team_id", team.ID))
	}
	return result, nil
}

// Ready blocks until the first snapshots of the active team have arrived.
func (c *Controller) Ready(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()

	if ready == nil {
		return goerr.Wrap(model.ErrPrecondition, "create a team first")
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "interrupted while loading team data")
	}
}

// Close detaches the subscriptions of the active team. The repository is
// left open.
func (c *Controller) Close() {
	c.mu.Lock()
	c.generation++
	old := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range old {
		sub.Stop()
	}
}

// activate switches the active team. Subscriptions of the previous team are
// stopped before the new ones are attached.
func (c *Controller) activate(ctx context.Context, team *model.Team) error {
	ready := make(chan struct{})

	c.mu.Lock()
	c.generation++
	gen := c.generation
	old := c.subs
	c.subs = nil
	c.state.ActiveTeam = team
	c.state.Entries = nil
	c.state.Summaries = nil
	c.ready = ready
	c.entriesLoaded = false
	c.summariesLoaded = false
	c.mu.Unlock()

	for _, sub := range old {
		sub.Stop()
	}
	c.notify()

	// Subscriptions outlive the operation that created them.
	subCtx := context.WithoutCancel(ctx)

	entriesSub, err := c.repo.SubscribeWeeklyInputs(subCtx, team.ID, func(inputs []*model.WeeklyInput, err error) {
		c.onSnapshot(gen, err, func(s *State) {
			s.Entries = inputs
			c.entriesLoaded = true
		})
	})
	if err != nil {
		c.markReady(gen)
		return goerr.Wrap(err, "failed to subscribe weekly inputs", goerr.V("team_id", team.ID))
	}

	summariesSub, err := c.repo.SubscribeSummaries(subCtx, team.ID, func(summaries []*model.Summary, err error) {
		c.onSnapshot(gen, err, func(s *State) {
			s.Summaries = summaries
			c.summariesLoaded = true
		})
	})
	if err != nil {
		entriesSub.Stop()
		c.markReady(gen)
		return goerr.Wrap(err, "failed to subscribe summaries", goerr.V("team_id", team.ID))
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		entriesSub.Stop()
		summariesSub.Stop()
		return nil
	}
	c.subs = []repository.Subscription{entriesSub, summariesSub}
	c.mu.Unlock()

	logging.From(ctx).Debug("team activated", "team_id", team.ID)
	return nil
}

// onSnapshot applies a snapshot of generation gen. The cached list is
// replaced wholesale; a listener error goes to the error slot.
func (c *Controller) onSnapshot(gen uint64, err error, apply func(*State)) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state.Error = err.Error()
	} else {
		apply(&c.state)
	}
	if err != nil || (c.entriesLoaded && c.summariesLoaded) {
		c.closeReadyLocked()
	}
	snapshot := c.state.clone()
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

func (c *Controller) markReady(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.closeReadyLocked()
	}
}

func (c *Controller) closeReadyLocked() {
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

func (c *Controller) requireStore() error {
	if c.repo != nil {
		return nil
	}
	if c.storeErr != nil {
		return c.storeErr
	}
	return goerr.Wrap(model.ErrConfiguration, "store is not configured")
}

// fail records err in the error slot and returns it.
func (c *Controller) fail(ctx context.Context, err error) error {
	logging.From(ctx).Warn("workflow operation failed", "error", err)
	c.update(func(s *State) { s.Error = err.Error() })
	return err
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state.clone()
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}

func (c *Controller) notify() {
	c.update(func(*State) {})
}
