package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
)

// Memory is a process-local Repository. Snapshots are delivered
// synchronously from Subscribe and from the write that changed them.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	teams map[model.TeamID]*memoryTeam
	seq   uint64

	listeners map[uint64]*memoryListener
}

type memoryTeam struct {
	team      model.Team
	inputs    []model.WeeklyInput
	summaries []model.Summary
}

type memoryListener struct {
	teamID     model.TeamID
	collection string
	inputs     WeeklyInputsHandler
	summaries  SummariesHandler

	// deliver serializes callbacks of one listener.
	deliver sync.Mutex
	stopped bool
}

type MemoryOption func(*Memory)

// WithClock replaces the clock used for createdAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:       time.Now,
		teams:     make(map[model.TeamID]*memoryTeam),
		listeners: make(map[uint64]*memoryListener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) CreateTeam(ctx context.Context, name string) (*model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &memoryTeam{team: model.Team{
		ID:        model.TeamID(uuid.NewString()),
		Name:      name,
		CreatedAt: m.now(),
	}}
	m.teams[t.team.ID] = t

	team := t.team
	return &team, nil
}

func (m *Memory) GetTeam(ctx context.Context, id model.TeamID) (*model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrTeamNotFound, "no such team", goerr.V("team_id", id))
	}
	team := t.team
	return &team, nil
}

func (m *Memory) AddWeeklyInput(ctx context.Context, teamID model.TeamID, input *model.WeeklyInput) error {
	m.mu.Lock()
	t, ok := m.teams[teamID]
	if !ok {
		m.mu.Unlock()
		return goerr.Wrap(model.ErrTeamNotFound, "no such team", goerr.V("team_id", teamID))
	}
	v := *input
	v.ID = uuid.NewString()
	v.CreatedAt = m.now()
	t.inputs = append(t.inputs, v)
	m.mu.Unlock()

	m.notify(teamID, CollectionWeeklyInputs)
	return nil
}

func (m *Memory) AddSummary(ctx context.Context, teamID model.TeamID, summary *model.Summary) error {
	m.mu.Lock()
	t, ok := m.teams[teamID]
	if !ok {
		m.mu.Unlock()
		return goerr.Wrap(model.ErrTeamNotFound, "no such team", goerr.V("team_id", teamID))
	}
	v := *summary
	v.ID = uuid.NewString()
	v.CreatedAt = m.now()
	t.summaries = append(t.summaries, v)
	m.mu.Unlock()

	m.notify(teamID, CollectionSummaries)
	return nil
}

func (m *Memory) SubscribeWeeklyInputs(ctx context.Context, teamID model.TeamID, fn WeeklyInputsHandler) (Subscription, error) {
	return m.subscribe(&memoryListener{teamID: teamID, collection: CollectionWeeklyInputs, inputs: fn})
}

func (m *Memory) SubscribeSummaries(ctx context.Context, teamID model.TeamID, fn SummariesHandler) (Subscription, error) {
	return m.subscribe(&memoryListener{teamID: teamID, collection: CollectionSummaries, summaries: fn})
}

func (m *Memory) Close() error {
	m.mu.Lock()
	listeners := m.listeners
	m.listeners = make(map[uint64]*memoryListener)
	m.mu.Unlock()

	for _, l := range listeners {
		l.stop()
	}
	return nil
}

// Listeners returns the number of attached subscriptions.
func (m *Memory) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *Memory) subscribe(l *memoryListener) (Subscription, error) {
	m.mu.Lock()
	m.seq++
	id := m.seq
	m.listeners[id] = l
	m.mu.Unlock()

	m.push(l)
	return &memorySubscription{memory: m, id: id, listener: l}, nil
}

func (m *Memory) notify(teamID model.TeamID, collection string) {
	m.mu.Lock()
	targets := make([]*memoryListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		if l.teamID == teamID && l.collection == collection {
			targets = append(targets, l)
		}
	}
	m.mu.Unlock()

	for _, l := range targets {
		m.push(l)
	}
}

// push delivers the current snapshot of the listener's collection.
func (m *Memory) push(l *memoryListener) {
	l.deliver.Lock()
	defer l.deliver.Unlock()
	if l.stopped {
		return
	}

	switch l.collection {
	case CollectionWeeklyInputs:
		l.inputs(m.weeklyInputs(l.teamID), nil)
	case CollectionSummaries:
		l.summaries(m.summaries(l.teamID), nil)
	}
}

func (m *Memory) weeklyInputs(teamID model.TeamID) []*model.WeeklyInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return []*model.WeeklyInput{}
	}
	out := make([]*model.WeeklyInput, 0, len(t.inputs))
	for i := range t.inputs {
		v := t.inputs[i]
		out = append(out, &v)
	}
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b *model.WeeklyInput) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (m *Memory) summaries(teamID model.TeamID) []*model.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return []*model.Summary{}
	}
	out := make([]*model.Summary, 0, len(t.summaries))
	for i := range t.summaries {
		v := t.summaries[i]
		out = append(out, &v)
	}
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b *model.Summary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (l *memoryListener) stop() {
	l.deliver.Lock()
	l.stopped = true
	l.deliver.Unlock()
}

type memorySubscription struct {
	memory   *Memory
	id       uint64
	listener *memoryListener
	once     sync.Once
}

func (s *memorySubscription) Stop() {
	s.once.Do(func() {
		s.memory.mu.Lock()
		delete(s.memory.listeners, s.id)
		s.memory.mu.Unlock()
		s.listener.stop()
	})
}
