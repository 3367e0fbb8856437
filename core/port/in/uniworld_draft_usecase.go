package in

import "context"

// DraftContext feeds the suggestion prompt.
type DraftContext struct {
	ProgramName string
	University  string
	UserName    string
	Purpose     string
	Hints       string
}

// DraftUseCase produces AI-assisted email drafts.
type DraftUseCase interface {
	// SuggestSubject proposes subject lines for an inquiry email.
	SuggestSubject(ctx context.Context, dctx DraftContext) ([]string, error)

	// SuggestBody drafts an email body for an inquiry email.
	SuggestBody(ctx context.Context, dctx DraftContext) (string, error)
}
