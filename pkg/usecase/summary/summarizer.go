package summary

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/adapter"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
	"google.golang.org/genai"
)

// NoSummaryReturned is used when the model response carries no text.
const NoSummaryReturned = "No summary returned."

// Summarizer sends summary prompts to Gemini.
type Summarizer struct {
	gemini adapter.Gemini
}

// NewSummarizer creates a Summarizer. A nil client is allowed; Summarize then
// fails with model.ErrMissingCredential.
func NewSummarizer(gemini adapter.Gemini) *Summarizer {
	return &Summarizer{gemini: gemini}
}

// Summarize issues a single generation request and returns the text of the
// first candidate.
func (s *Summarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	if s == nil || s.gemini == nil {
		return "", goerr.Wrap(model.ErrMissingCredential, "gemini api key is not configured")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := s.gemini.GenerateContent(ctx, contents, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}

	text, ok := FirstCandidateText(resp)
	if !ok {
		logging.From(ctx).Warn("model returned no text", "candidates", candidateCount(resp))
		return NoSummaryReturned, nil
	}
	return text, nil
}

// FirstCandidateText reads candidates[0].content.parts[0].text. It reports
// false when any element of the path is missing or the text is empty.
func FirstCandidateText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", false
	}
	part := candidate.Content.Parts[0]
	if part == nil || part.Text == "" {
		return "", false
	}
	return part.Text, true
}

func candidateCount(resp *genai.GenerateContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Candidates)
}
