package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// Identity issues anonymous sessions.
type Identity interface {
	SignInAnonymously(ctx context.Context) (*model.Session, error)
}

type identityClient struct {
	service *identitytoolkit.Service
	now     func() time.Time
}

type IdentityOption func(*identityConfig)

type identityConfig struct {
	endpoint string
	now      func() time.Time
}

// WithIdentityEndpoint overrides the Identity Toolkit endpoint, e.g. for the
// auth emulator.
func WithIdentityEndpoint(endpoint string) IdentityOption {
	return func(c *identityConfig) {
		c.endpoint = endpoint
	}
}

func WithIdentityClock(now func() time.Time) IdentityOption {
	return func(c *identityConfig) {
		c.now = now
	}
}

// NewIdentity creates an Identity backed by the Identity Toolkit API of the
// Firebase project that owns apiKey.
func NewIdentity(ctx context.Context, apiKey string, opts ...IdentityOption) (Identity, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "firebase api key is not set")
	}

	cfg := &identityConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}

	svc, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create identity toolkit client")
	}

	return &identityClient{service: svc, now: cfg.now}, nil
}

func (c *identityClient) SignInAnonymously(ctx context.Context) (*model.Session, error) {
	resp, err := c.service.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{}).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "failed to sign in anonymously", goerr.V("cause", err.Error()))
	}
	if resp.IdToken == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "identity provider returned no token", goerr.V("user_id", resp.LocalId))
	}

	session := &model.Session{
		UserID:  resp.LocalId,
		IDToken: resp.IdToken,
	}
	if sec := resp.ExpiresIn; sec > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(sec) * time.Second)
	}

	return session, nil
}

// localIdentity issues process-local sessions for the in-memory store.
type localIdentity struct{}

// NewLocalIdentity returns an Identity that never leaves the process.
func NewLocalIdentity() Identity {
	return &localIdentity{}
}

func (localIdentity) SignInAnonymously(ctx context.Context) (*model.Session, error) {
	return &model.Session{
		UserID:  "local-" + uuid.NewString(),
		IDToken: "local",
	}, nil
}
