package adapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"google.golang.org/genai"
)

// DefaultGenerativeModel is the model used for weekly summaries.
const DefaultGenerativeModel = "gemini-2.5-flash"

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

type geminiConfig struct {
	generativeModel string
	baseURL         string
	httpClient      *http.Client
}

type GeminiOption func(*geminiConfig)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *geminiConfig) {
		g.generativeModel = model
	}
}

// WithBaseURL points the client to another Gemini API endpoint.
func WithBaseURL(url string) GeminiOption {
	return func(g *geminiConfig) {
		g.baseURL = url
	}
}

func WithHTTPClient(client *http.Client) GeminiOption {
	return func(g *geminiConfig) {
		g.httpClient = client
	}
}

// NewGemini creates a client for the Gemini API authenticated by an API key.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrMissingCredential, "gemini api key is not set")
	}

	cfg := &geminiConfig{
		generativeModel: DefaultGenerativeModel,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	return &GeminiClient{
		client:          client,
		generativeModel: cfg.generativeModel,
	}, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		if details, code, ok := apiErrorDetails(err); ok {
			return nil, goerr.Wrap(model.ErrModelRequestFailed, details,
				goerr.V("code", code),
				goerr.V("model", g.generativeModel))
		}
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}

// apiErrorDetails extracts the server message of a non-success response.
func apiErrorDetails(err error) (string, int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return detailsOf(apiErr), apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return detailsOf(*apiErrPtr), apiErrPtr.Code, true
	}
	return "", 0, false
}

func detailsOf(apiErr genai.APIError) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return apiErr.Error()
}
