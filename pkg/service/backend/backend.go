package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/adapter"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/repository"
	"github.com/m-mizutani/weeknote/pkg/usecase/summary"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
	"github.com/m-mizutani/weeknote/pkg/workflow"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// Environment variables read by the CLI. They also name the values reported
// as missing by Config.Validate.
const (
	EnvFirebaseAPIKey      = "WEEKNOTE_FIREBASE_API_KEY"
	EnvFirebaseProjectID   = "WEEKNOTE_FIREBASE_PROJECT_ID"
	EnvFirestoreDatabaseID = "WEEKNOTE_FIRESTORE_DATABASE_ID"
	EnvStore               = "WEEKNOTE_STORE"
	EnvAuthEndpoint        = "WEEKNOTE_AUTH_ENDPOINT"
	EnvGeminiAPIKey        = "WEEKNOTE_GEMINI_API_KEY"
	EnvGeminiModel         = "WEEKNOTE_GEMINI_MODEL"
	EnvArchiveBucket       = "WEEKNOTE_ARCHIVE_BUCKET"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config carries the process configuration.
type Config struct {
	Store string

	FirebaseAPIKey string
	ProjectID      string
	DatabaseID     string
	AuthEndpoint   string

	GeminiAPIKey string
	GeminiModel  string

	ArchiveBucket string

	// SessionCache is the path of the cached session file. Empty disables
	// the cache.
	SessionCache string
}

// Validate checks the values required by the selected store. All missing
// values are reported in a single configuration error.
func (c Config) Validate() error {
	switch c.store() {
	case StoreMemory:
		return nil
	case StoreFirestore:
	default:
		return goerr.Wrap(model.ErrConfiguration, "unknown store", goerr.V("store", c.Store))
	}

	var missing []string
	if c.FirebaseAPIKey == "" {
		missing = append(missing, EnvFirebaseAPIKey)
	}
	if c.ProjectID == "" {
		missing = append(missing, EnvFirebaseProjectID)
	}
	if len(missing) > 0 {
		return goerr.Wrap(model.ErrConfiguration, "missing configuration: "+strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) store() string {
	if c.Store == "" {
		return StoreFirestore
	}
	return c.Store
}

// StoreFactory opens the repository for an established session.
type StoreFactory func(ctx context.Context, cfg Config, session *model.Session) (repository.Repository, error)

// Backend owns the process-scoped services: the session, the store and the
// model client. Init runs at most once; later calls return its outcome.
type Backend struct {
	cfg Config

	identity     adapter.Identity
	storeFactory StoreFactory
	gemini       adapter.Gemini
	now          func() time.Time

	mu       sync.Mutex
	inited   bool
	session  *model.Session
	repo     repository.Repository
	storeErr error
	storages map[string]adapter.Storage
}

type Option func(*Backend)

// WithIdentity replaces the identity provider used for anonymous sign-in.
func WithIdentity(identity adapter.Identity) Option {
	return func(b *Backend) {
		b.identity = identity
	}
}

func WithStoreFactory(factory StoreFactory) Option {
	return func(b *Backend) {
		b.storeFactory = factory
	}
}

// WithGemini replaces the model client built from the API key.
func WithGemini(gemini adapter.Gemini) Option {
	return func(b *Backend) {
		b.gemini = gemini
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

func New(cfg Config, opts ...Option) *Backend {
	b := &Backend{
		cfg:          cfg,
		storeFactory: newFirestore,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init establishes the session and opens the store and the model client. A
// store failure is kept and returned; it disables store operations only.
func (b *Backend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inited {
		return b.storeErr
	}
	b.inited = true

	if err := b.initGemini(ctx); err != nil {
		logging.From(ctx).Warn("model client is not available", "error", err)
	}

	if err := b.initStore(ctx); err != nil {
		b.storeErr = err
		return err
	}
	return nil
}

func (b *Backend) initGemini(ctx context.Context) error {
	if b.gemini != nil || b.cfg.GeminiAPIKey == "" {
		return nil
	}

	var opts []adapter.GeminiOption
	if b.cfg.GeminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(b.cfg.GeminiModel))
	}
	client, err := adapter.NewGemini(ctx, b.cfg.GeminiAPIKey, opts...)
	if err != nil {
		return err
	}
	b.gemini = client
	return nil
}

func (b *Backend) initStore(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}

	if b.cfg.store() == StoreMemory {
		session, err := adapter.NewLocalIdentity().SignInAnonymously(ctx)
		if err != nil {
			return err
		}
		b.session = session
		b.repo = repository.NewMemory()
		logging.From(ctx).Debug("memory store opened", "user_id", session.UserID)
		return nil
	}

	session, err := b.establishSession(ctx)
	if err != nil {
		return err
	}
	b.session = session

	repo, err := b.storeFactory(ctx, b.cfg, session)
	if err != nil {
		return goerr.Wrap(err, "failed to open store", goerr.V("project_id", b.cfg.ProjectID))
	}
	b.repo = repo
	logging.From(ctx).Debug("store opened", "project_id", b.cfg.ProjectID, "database_id", b.cfg.DatabaseID, "user_id", session.UserID)
	return nil
}

// establishSession reuses a cached unexpired session of the same project or
// signs in anonymously.
func (b *Backend) establishSession(ctx context.Context) (*model.Session, error) {
	if b.cfg.SessionCache != "" {
		cached, err := LoadSession(b.cfg.SessionCache, b.cfg.ProjectID)
		if err != nil {
			logging.From(ctx).Warn("ignoring session cache", "path", b.cfg.SessionCache, "error", err)
		} else if cached.Valid(b.now()) {
			logging.From(ctx).Debug("reusing cached session", "user_id", cached.UserID)
			return cached, nil
		}
	}

	identity := b.identity
	if identity == nil {
		var opts []adapter.IdentityOption
		if b.cfg.AuthEndpoint != "" {
			opts = append(opts, adapter.WithIdentityEndpoint(b.cfg.AuthEndpoint))
		}
		client, err := adapter.NewIdentity(ctx, b.cfg.FirebaseAPIKey, opts...)
		if err != nil {
			return nil, err
		}
		identity = client
	}

	session, err := identity.SignInAnonymously(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to establish session")
	}
	logging.From(ctx).Info("signed in anonymously", "user_id", session.UserID)

	if b.cfg.SessionCache != "" {
		if err := SaveSession(b.cfg.SessionCache, b.cfg.ProjectID, session); err != nil {
			logging.From(ctx).Warn("failed to cache session", "path", b.cfg.SessionCache, "error", err)
		}
	}
	return session, nil
}

func newFirestore(ctx context.Context, cfg Config, session *model.Session) (repository.Repository, error) {
	token := &oauth2.Token{
		AccessToken: session.IDToken,
		TokenType:   "Bearer",
		Expiry:      session.ExpiresAt,
	}
	return repository.NewFirestore(ctx, cfg.ProjectID, cfg.DatabaseID,
		option.WithTokenSource(oauth2.StaticTokenSource(token)),
	)
}

// Repository returns the store, or the error that disabled it.
func (b *Backend) Repository() (repository.Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.inited {
		return nil, goerr.Wrap(model.ErrConfiguration, "backend is not initialized")
	}
	if b.storeErr != nil {
		return nil, b.storeErr
	}
	return b.repo, nil
}

func (b *Backend) Session() *model.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Summarizer returns a summarizer over the model client. Without an API key
// its Summarize fails with model.ErrMissingCredential.
func (b *Backend) Summarizer() *summary.Summarizer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return summary.NewSummarizer(b.gemini)
}

// Controller creates a workflow controller bound to this backend.
func (b *Backend) Controller(opts ...workflow.Option) *workflow.Controller {
	repo, storeErr := b.Repository()
	return workflow.New(workflow.NewInput{
		Repo:       repo,
		StoreError: storeErr,
		Summarizer: b.Summarizer(),
		Now:        b.now,
	}, opts...)
}

// Archiver opens the archive bucket. bucket overrides the configured one.
func (b *Backend) Archiver(ctx context.Context, bucket string) (*summary.Archiver, error) {
	if bucket == "" {
		bucket = b.cfg.ArchiveBucket
	}
	if bucket == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "missing configuration: "+EnvArchiveBucket)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	storage, ok := b.storages[bucket]
	if !ok {
		var err error
		storage, err = adapter.NewStorage(ctx, bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open archive", goerr.V("bucket", bucket))
		}
		if b.storages == nil {
			b.storages = make(map[string]adapter.Storage)
		}
		b.storages[bucket] = storage
	}
	return summary.NewArchiver(storage), nil
}

// Shutdown closes the store and the archive.
func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.repo != nil {
		if err := b.repo.Close(); err != nil {
			errs = append(errs, err)
		}
		b.repo = nil
	}
	for bucket, storage := range b.storages {
		if err := storage.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.storages, bucket)
	}
	if len(errs) > 0 {
		return goerr.Wrap(errs[0], "failed to shut down backend", goerr.V("errors", len(errs)))
	}
	return nil
}
