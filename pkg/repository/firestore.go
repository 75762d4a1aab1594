package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements Repository on Cloud Firestore.
//
//	teams/{teamId}
//	teams/{teamId}/weeklyInputs/{id}
//	teams/{teamId}/summaries/{id}
type Firestore struct {
	client *firestore.Client
}

// NewFirestore opens a Firestore client for the given database. The
// FIRESTORE_EMULATOR_HOST environment variable is honored by the client.
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...option.ClientOption) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "project is required")
	}
	if databaseID == "" {
		databaseID = "(default)"
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID),
			goerr.V("cause", err.Error()))
	}

	return &Firestore{client: client}, nil
}

func (r *Firestore) teamRef(id model.TeamID) *firestore.DocumentRef {
	return r.client.Collection(CollectionTeams).Doc(string(id))
}

func (r *Firestore) CreateTeam(ctx context.Context, name string) (*model.Team, error) {
	team := &model.Team{Name: name}

	ref, wr, err := r.client.Collection(CollectionTeams).Add(ctx, team)
	if err != nil {
		return nil, storeError(err, "failed to create team", goerr.V("name", name))
	}

	team.ID = model.TeamID(ref.ID)
	team.CreatedAt = wr.UpdateTime
	logging.From(ctx).Debug("team created", "team_id", team.ID)
	return team, nil
}

func (r *Firestore) GetTeam(ctx context.Context, id model.TeamID) (*model.Team, error) {
	doc, err := r.teamRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrTeamNotFound, "no such team", goerr.V("team_id", id))
		}
		return nil, storeError(err, "failed to get team", goerr.V("team_id", id))
	}

	var team model.Team
	if err := doc.DataTo(&team); err != nil {
		return nil, goerr.Wrap(err, "failed to decode team", goerr.V("team_id", id))
	}
	team.ID = model.TeamID(doc.Ref.ID)
	return &team, nil
}

func (r *Firestore) AddWeeklyInput(ctx context.Context, teamID model.TeamID, input *model.WeeklyInput) error {
	doc := &model.WeeklyInput{
		MemberName: input.MemberName,
		Update:     input.Update,
		WeekKey:    input.WeekKey,
	}
	ref, _, err := r.teamRef(teamID).Collection(CollectionWeeklyInputs).Add(ctx, doc)
	if err != nil {
		return storeError(err, "failed to add weekly input",
			goerr.V("team_id", teamID),
			goerr.V("week_key", input.WeekKey))
	}

	logging.From(ctx).Debug("weekly input added", "team_id", teamID, "id", ref.ID)
	return nil
}

func (r *Firestore) AddSummary(ctx context.Context, teamID model.TeamID, summary *model.Summary) error {
	doc := &model.Summary{
		WeekKey: summary.WeekKey,
		Content: summary.Content,
	}
	ref, _, err := r.teamRef(teamID).Collection(CollectionSummaries).Add(ctx, doc)
	if err != nil {
		return storeError(err, "failed to add summary",
			goerr.V("team_id", teamID),
			goerr.V("week_key", summary.WeekKey))
	}

	logging.From(ctx).Debug("summary added", "team_id", teamID, "id", ref.ID)
	return nil
}

func (r *Firestore) SubscribeWeeklyInputs(ctx context.Context, teamID model.TeamID, fn WeeklyInputsHandler) (Subscription, error) {
	q := r.teamRef(teamID).Collection(CollectionWeeklyInputs).OrderBy("createdAt", firestore.Desc)
	return watch(ctx, q, func(doc *firestore.DocumentSnapshot) (*model.WeeklyInput, error) {
		var v model.WeeklyInput
		if err := doc.DataTo(&v); err != nil {
			return nil, goerr.Wrap(err, "failed to decode weekly input", goerr.V("id", doc.Ref.ID))
		}
		v.ID = doc.Ref.ID
		return &v, nil
	}, fn), nil
}

func (r *Firestore) SubscribeSummaries(ctx context.Context, teamID model.TeamID, fn SummariesHandler) (Subscription, error) {
	q := r.teamRef(teamID).Collection(CollectionSummaries).OrderBy("createdAt", firestore.Desc)
	return watch(ctx, q, func(doc *firestore.DocumentSnapshot) (*model.Summary, error) {
		var v model.Summary
		if err := doc.DataTo(&v); err != nil {
			return nil, goerr.Wrap(err, "failed to decode summary", goerr.V("id", doc.Ref.ID))
		}
		v.ID = doc.Ref.ID
		return &v, nil
	}, fn), nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

type firestoreSubscription struct {
	cancel  context.CancelFunc
	it      *firestore.QuerySnapshotIterator
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
}

func (s *firestoreSubscription) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.cancel()
		s.it.Stop()
		<-s.done
	})
}

// watch runs a snapshot listener on q until the subscription is stopped or
// the listener fails. A failure is reported once through fn.
func watch[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (*T, error), fn func([]*T, error)) *firestoreSubscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &firestoreSubscription{
		cancel: cancel,
		it:     q.Snapshots(ctx),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		logger := logging.From(ctx)

		for {
			snap, err := sub.it.Next()
			if err != nil {
				if sub.stopped.Load() || listenerClosed(ctx, err) {
					return
				}
				logger.Warn("snapshot listener failed", "error", err)
				fn(nil, storeError(err, "snapshot listener failed"))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				if sub.stopped.Load() {
					return
				}
				fn(nil, storeError(err, "failed to read snapshot"))
				continue
			}

			items := make([]*T, 0, len(docs))
			var decodeErr error
			for _, doc := range docs {
				v, err := decode(doc)
				if err != nil {
					decodeErr = err
					break
				}
				items = append(items, v)
			}

			if sub.stopped.Load() {
				return
			}
			if decodeErr != nil {
				fn(nil, decodeErr)
				continue
			}
			fn(items, nil)
		}
	}()

	return sub
}

func listenerClosed(ctx context.Context, err error) bool {
	if errors.Is(err, iterator.Done) || ctx.Err() != nil {
		return true
	}
	return status.Code(err) == codes.Canceled
}

// storeError marks reachability and permission failures as
// model.ErrStoreUnavailable.
func storeError(err error, msg string, options ...goerr.Option) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition, codes.DeadlineExceeded:
		options = append(options, goerr.V("cause", err.Error()), goerr.V("code", status.Code(err).String()))
		return goerr.Wrap(model.ErrStoreUnavailable, msg, options...)
	}
	return goerr.Wrap(err, msg, options...)
}
