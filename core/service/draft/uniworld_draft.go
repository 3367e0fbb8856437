package draft

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"uniworld_server/core/port/in"
	"uniworld_server/pkg/apperr"
)

const defaultModel = "gpt-4o-mini"

// DraftService generates email draft suggestions with an LLM. It is
// advisory only; nothing it returns is sent without the user editing
// and submitting it through the normal send path.
type DraftService struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

var _ in.DraftUseCase = (*DraftService)(nil)

func NewDraftService(apiKey, model string, log zerolog.Logger) *DraftService {
	if model == "" {
		model = defaultModel
	}
	return &DraftService{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log.With().Str("component", "draft").Logger(),
	}
}

// SuggestSubject proposes up to three subject lines.
func (s *DraftService) SuggestSubject(ctx context.Context, dctx in.DraftContext) ([]string, error) {
	prompt := fmt.Sprintf(
		"Suggest 3 concise, professional email subject lines for a prospective student "+
			"contacting a university program coordinator.\n%s\n"+
			"Return one subject per line, no numbering.",
		describeContext(dctx),
	)

	content, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	subjects := parseSubjects(content)
	if len(subjects) == 0 {
		return nil, apperr.Internal("empty draft response", nil)
	}
	return subjects, nil
}

// parseSubjects splits a completion into up to three subject lines,
// stripping the list markers models add despite being told not to.
func parseSubjects(content string) []string {
	subjects := make([]string, 0, 3)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line != "" {
			subjects = append(subjects, line)
		}
		if len(subjects) == 3 {
			break
		}
	}
	return subjects
}

// SuggestBody drafts a full email body.
func (s *DraftService) SuggestBody(ctx context.Context, dctx in.DraftContext) (string, error) {
	prompt := fmt.Sprintf(
		"Draft a polite, professional email body from a prospective student to a "+
			"university program coordinator.\n%s\n"+
			"Keep it under 200 words. Plain text only, no subject line, no placeholders left unfilled "+
			"except [Your Name] if the sender's name is unknown.",
		describeContext(dctx),
	)

	body, err := s.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Internal("empty draft response", nil)
	}
	return body, nil
}

func (s *DraftService) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You help prospective students write inquiry emails to university programs.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("draft completion failed")
		return "", apperr.Unavailable("draft suggestion unavailable", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Internal("empty draft response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func describeContext(dctx in.DraftContext) string {
	var b strings.Builder
	if dctx.ProgramName != "" {
		fmt.Fprintf(&b, "Program: %s\n", dctx.ProgramName)
	}
	if dctx.University != "" {
		fmt.Fprintf(&b, "University: %s\n", dctx.University)
	}
	if dctx.UserName != "" {
		fmt.Fprintf(&b, "Sender name: %s\n", dctx.UserName)
	}
	if dctx.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", dctx.Purpose)
	}
	if dctx.Hints != "" {
		fmt.Fprintf(&b, "Additional notes: %s\n", dctx.Hints)
	}
	if b.Len() == 0 {
		return "Purpose: general admissions inquiry\n"
	}
	return b.String()
}
