package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/in"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/apperr"
	"uniworld_server/pkg/logger"
)

// ===========================================================================
// Fakes
// ===========================================================================

type fakeOAuth struct {
	token      string
	tokenErr   error
	freshToken string
	refreshErr error

	validCalls   int
	refreshCalls int
}

func (f *fakeOAuth) BeginConnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, string, error) {
	return "", "", errors.New("not implemented")
}
func (f *fakeOAuth) CompleteConnect(ctx context.Context, state, code string) (domain.Provider, error) {
	return "", errors.New("not implemented")
}
func (f *fakeOAuth) TokenStatuses(ctx context.Context, userID uuid.UUID) ([]domain.TokenStatus, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeOAuth) ForceRefresh(ctx context.Context, userID uuid.UUID, provider domain.Provider) (domain.TokenStatus, error) {
	return domain.TokenStatus{}, errors.New("not implemented")
}
func (f *fakeOAuth) ValidAccessToken(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, error) {
	f.validCalls++
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.token, nil
}
func (f *fakeOAuth) RefreshNow(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.freshToken, nil
}
func (f *fakeOAuth) Disconnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	return errors.New("not implemented")
}

// fakeSendProvider answers Send from a scripted error sequence; a nil
// entry (or running past the script) is a success.
type fakeSendProvider struct {
	name      domain.Provider
	sendErrs  []error
	messageID string

	sendCalls  int
	sentTokens []string
	sentTo     []string
}

func (f *fakeSendProvider) Name() domain.Provider       { return f.name }
func (f *fakeSendProvider) AuthURL(state string) string { return "" }
func (f *fakeSendProvider) Exchange(ctx context.Context, code string) (*out.Token, string, error) {
	return nil, "", errors.New("not implemented")
}
func (f *fakeSendProvider) Refresh(ctx context.Context, refreshToken string) (*out.Token, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeSendProvider) Revoke(ctx context.Context, token string) error {
	return errors.New("not implemented")
}
func (f *fakeSendProvider) Send(ctx context.Context, accessToken string, msg *domain.OutboundMessage) (string, error) {
	call := f.sendCalls
	f.sendCalls++
	f.sentTokens = append(f.sentTokens, accessToken)
	f.sentTo = append(f.sentTo, msg.To)
	if call < len(f.sendErrs) && f.sendErrs[call] != nil {
		return "", f.sendErrs[call]
	}
	return f.messageID, nil
}

type fakeRegistry struct {
	provider out.MailProvider
}

func (f *fakeRegistry) Get(p domain.Provider) (out.MailProvider, error) {
	if f.provider == nil || f.provider.Name() != p {
		return nil, apperr.UnsupportedProvider(p.String())
	}
	return f.provider, nil
}

type fakeDispatchRepo struct {
	created   []*domain.Dispatch
	updated   []*domain.Dispatch
	createErr error
	updateErr error

	listItems []*domain.Dispatch
	listTotal int64
	lastPage  int
	lastSize  int
}

func (f *fakeDispatchRepo) Create(ctx context.Context, d *domain.Dispatch) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDispatchRepo) UpdateOutcome(ctx context.Context, d *domain.Dispatch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, d)
	return nil
}

func (f *fakeDispatchRepo) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Dispatch, int64, error) {
	f.lastPage = page
	f.lastSize = pageSize
	return f.listItems, f.listTotal, nil
}

type fakeBodyRepo struct {
	saved   map[uuid.UUID]string
	saveErr error
}

func (f *fakeBodyRepo) Save(ctx context.Context, dispatchID uuid.UUID, body string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = make(map[uuid.UUID]string)
	}
	f.saved[dispatchID] = body
	return nil
}

func (f *fakeBodyRepo) Load(ctx context.Context, dispatchID uuid.UUID) (string, error) {
	body, ok := f.saved[dispatchID]
	if !ok {
		return "", out.ErrNotFound
	}
	return body, nil
}

// ===========================================================================
// Helpers
// ===========================================================================

func authErr() error {
	return out.NewProviderError(domain.ProviderGmail, out.ProviderErrTokenExpired, "token rejected", nil, false)
}

func newTestSendService(oauth *fakeOAuth, provider *fakeSendProvider, repo *fakeDispatchRepo, bodies *fakeBodyRepo) *SendService {
	var b out.DispatchBodyRepository
	if bodies != nil {
		b = bodies
	}
	return NewSendService(oauth, &fakeRegistry{provider: provider}, repo, b,
		logger.New(logger.Config{Level: logger.LevelError, Service: "test"}))
}

func sendReq() in.SendRequest {
	return in.SendRequest{
		Recipient: "dest@example.com",
		Subject:   "Welcome",
		Body:      "Hello there, thanks for joining.",
		Provider:  domain.ProviderGmail,
	}
}

// ===========================================================================
// Single send
// ===========================================================================

func TestSendSuccess(t *testing.T) {
	oauth := &fakeOAuth{token: "access-1"}
	provider := &fakeSendProvider{name: domain.ProviderGmail, messageID: "msg-123"}
	repo := &fakeDispatchRepo{}
	bodies := &fakeBodyRepo{}
	svc := newTestSendService(oauth, provider, repo, bodies)

	d, err := svc.Send(context.Background(), uuid.New(), sendReq())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if d.Status != domain.DispatchSent {
		t.Errorf("status = %q, want sent", d.Status)
	}
	if d.MessageID != "msg-123" {
		t.Errorf("message id = %q, want msg-123", d.MessageID)
	}
	if d.SentAt == nil {
		t.Error("SentAt is nil after successful send")
	}
	if provider.sendCalls != 1 {
		t.Errorf("send calls = %d, want 1", provider.sendCalls)
	}
	if provider.sentTokens[0] != "access-1" {
		t.Errorf("sent with token %q, want access-1", provider.sentTokens[0])
	}
	if len(repo.created) != 1 || len(repo.updated) != 1 {
		t.Errorf("dispatch records: created=%d updated=%d, want 1/1", len(repo.created), len(repo.updated))
	}
	if got := bodies.saved[d.ID]; got != sendReq().Body {
		t.Errorf("archived body = %q", got)
	}
}

func TestSendTwiceProducesIndependentDispatches(t *testing.T) {
	oauth := &fakeOAuth{token: "access-1"}
	provider := &fakeSendProvider{name: domain.ProviderGmail, messageID: "msg-1"}
	repo := &fakeDispatchRepo{}
	svc := newTestSendService(oauth, provider, repo, nil)
	userID := uuid.New()

	first, err := svc.Send(context.Background(), userID, sendReq())
	if err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	second, err := svc.Send(context.Background(), userID, sendReq())
	if err != nil {
		t.Fatalf("second Send() error = %v", err)
	}

	// The same message sent again is a new attempt, not a replay of
	// the first one.
	if first.ID == second.ID {
		t.Error("second send reused the first dispatch record")
	}
	if first.Status != domain.DispatchSent || second.Status != domain.DispatchSent {
		t.Errorf("statuses = %q/%q, want sent/sent", first.Status, second.Status)
	}
	if provider.sendCalls != 2 {
		t.Errorf("send calls = %d, want 2", provider.sendCalls)
	}
	if len(repo.created) != 2 || len(repo.updated) != 2 {
		t.Errorf("dispatch records: created=%d updated=%d, want 2/2", len(repo.created), len(repo.updated))
	}
}

func TestSendResolvesTokenBeforeDispatchRecord(t *testing.T) {
	oauth := &fakeOAuth{tokenErr: apperr.NotConnected("gmail")}
	provider := &fakeSendProvider{name: domain.ProviderGmail}
	repo := &fakeDispatchRepo{}
	svc := newTestSendService(oauth, provider, repo, nil)

	_, err := svc.Send(context.Background(), uuid.New(), sendReq())
	if apperr.CodeOf(err) != apperr.CodeNotConnected {
		t.Fatalf("error code = %q, want NOT_CONNECTED", apperr.CodeOf(err))
	}
	if len(repo.created) != 0 {
		t.Error("dispatch recorded despite missing credential")
	}
	if provider.sendCalls != 0 {
		t.Error("provider called despite missing credential")
	}
}

func TestSendRetriesOnceAfterAuthRejection(t *testing.T) {
	oauth := &fakeOAuth{token: "stale", freshToken: "fresh"}
	provider := &fakeSendProvider{
		name:      domain.ProviderGmail,
		sendErrs:  []error{authErr()},
		messageID: "msg-2",
	}
	repo := &fakeDispatchRepo{}
	svc := newTestSendService(oauth, provider, repo, nil)

	d, err := svc.Send(context.Background(), uuid.New(), sendReq())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if d.Status != domain.DispatchSent {
		t.Errorf("status = %q, want sent", d.Status)
	}
	if provider.sendCalls != 2 {
		t.Fatalf("send calls = %d, want 2", provider.sendCalls)
	}
	if oauth.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", oauth.refreshCalls)
	}
	if provider.sentTokens[1] != "fresh" {
		t.Errorf("retry used token %q, want fresh", provider.sentTokens[1])
	}
}

func TestSendSecondAuthRejectionIsTerminal(t *testing.T) {
	oauth := &fakeOAuth{token: "stale", freshToken: "fresh"}
	provider := &fakeSendProvider{
		name:     domain.ProviderGmail,
		sendErrs: []error{authErr(), authErr()},
	}
	repo := &fakeDispatchRepo{}
	svc := newTestSendService(oauth, provider, repo, nil)

	d, err := svc.Send(context.Background(), uuid.New(), sendReq())
	if apperr.CodeOf(err) != apperr.CodeProviderAuth {
		t.Errorf("error code = %q, want PROVIDER_AUTH_ERROR", apperr.CodeOf(err))
	}
	if provider.sendCalls != 2 {
		t.Errorf("send calls = %d, want exactly 2", provider.sendCalls)
	}
	if oauth.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", oauth.refreshCalls)
	}
	if d == nil || d.Status != domain.DispatchFailed {
		t.Error("dispatch should be marked failed")
	}
	if len(repo.updated) != 1 {
		t.Errorf("outcome updates = %d, want 1", len(repo.updated))
	}
}

func TestSendNonAuthFailureDoesNotRefresh(t *testing.T) {
	oauth := &fakeOAuth{token: "access-1"}
	provider := &fakeSendProvider{
		name: domain.ProviderGmail,
		sendErrs: []error{
			out.NewProviderError(domain.ProviderGmail, out.ProviderErrRateLimit, "quota exceeded", nil, true),
		},
	}
	svc := newTestSendService(oauth, provider, &fakeDispatchRepo{}, nil)

	_, err := svc.Send(context.Background(), uuid.New(), sendReq())
	if apperr.CodeOf(err) != apperr.CodeRateLimited {
		t.Errorf("error code = %q, want RATE_LIMITED", apperr.CodeOf(err))
	}
	if oauth.refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0", oauth.refreshCalls)
	}
	if provider.sendCalls != 1 {
		t.Errorf("send calls = %d, want 1", provider.sendCalls)
	}
}

func TestSendRefreshFailureAfterRejectionFailsDispatch(t *testing.T) {
	oauth := &fakeOAuth{token: "stale", refreshErr: apperr.ReconnectRequired("gmail", errors.New("grant revoked"))}
	provider := &fakeSendProvider{
		name:     domain.ProviderGmail,
		sendErrs: []error{authErr()},
	}
	repo := &fakeDispatchRepo{}
	svc := newTestSendService(oauth, provider, repo, nil)

	_, err := svc.Send(context.Background(), uuid.New(), sendReq())
	if apperr.CodeOf(err) != apperr.CodeReconnectRequired {
		t.Errorf("error code = %q, want RECONNECT_REQUIRED", apperr.CodeOf(err))
	}
	if provider.sendCalls != 1 {
		t.Errorf("send calls = %d, want 1 (no resend without a fresh token)", provider.sendCalls)
	}
	if len(repo.updated) != 1 || repo.updated[0].Status != domain.DispatchFailed {
		t.Error("dispatch outcome should be recorded as failed")
	}
}

func TestSendValidation(t *testing.T) {
	svc := newTestSendService(&fakeOAuth{token: "t"},
		&fakeSendProvider{name: domain.ProviderGmail}, &fakeDispatchRepo{}, nil)

	tests := []struct {
		name string
		mut  func(*in.SendRequest)
	}{
		{"empty recipient", func(r *in.SendRequest) { r.Recipient = "" }},
		{"malformed recipient", func(r *in.SendRequest) { r.Recipient = "not-an-address" }},
		{"empty subject", func(r *in.SendRequest) { r.Subject = "  " }},
		{"empty body", func(r *in.SendRequest) { r.Body = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sendReq()
			tt.mut(&req)
			_, err := svc.Send(context.Background(), uuid.New(), req)
			if apperr.CodeOf(err) != apperr.CodeInvalidInput {
				t.Errorf("error code = %q, want INVALID_INPUT", apperr.CodeOf(err))
			}
		})
	}
}

func TestSendBookkeepingFailureDoesNotSurface(t *testing.T) {
	oauth := &fakeOAuth{token: "access-1"}
	provider := &fakeSendProvider{name: domain.ProviderGmail, messageID: "msg-9"}
	repo := &fakeDispatchRepo{updateErr: errors.New("db down")}
	bodies := &fakeBodyRepo{saveErr: errors.New("mongo down")}
	svc := newTestSendService(oauth, provider, repo, bodies)

	d, err := svc.Send(context.Background(), uuid.New(), sendReq())
	if err != nil {
		t.Fatalf("Send() error = %v, bookkeeping failures must not surface", err)
	}
	if d.Status != domain.DispatchSent {
		t.Errorf("status = %q, want sent", d.Status)
	}
}

// ===========================================================================
// Bulk send
// ===========================================================================

func TestSendBulkCountsPartialFailures(t *testing.T) {
	oauth := &fakeOAuth{token: "access-1"}
	provider := &fakeSendProvider{
		name: domain.ProviderGmail,
		sendErrs: []error{
			nil,
			out.NewProviderError(domain.ProviderGmail, out.ProviderErrServer, "upstream 500", nil, true),
			nil,
		},
		messageID: "msg-b",
	}
	repo := &fakeDispatchRepo{}
	svc := newTestSendService(oauth, provider, repo, nil)

	result, err := svc.SendBulk(context.Background(), uuid.New(), in.BulkSendRequest{
		Recipients: []string{"a@example.com", "b@example.com", "c@example.com"},
		Subject:    "Update",
		Body:       "Season schedule attached.",
		Provider:   domain.ProviderGmail,
	})
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}
	if result.Total != 3 || result.Sent != 2 || result.Failed != 1 {
		t.Errorf("result = %d/%d/%d, want total=3 sent=2 failed=1", result.Total, result.Sent, result.Failed)
	}
	if _, ok := result.Errors["b@example.com"]; !ok {
		t.Error("failed recipient missing from Errors map")
	}
	if oauth.validCalls != 1 {
		t.Errorf("token resolved %d times, want once for the whole batch", oauth.validCalls)
	}
	if len(repo.created) != 1 {
		t.Errorf("dispatch rows = %d, want one bulk row", len(repo.created))
	}
	if len(repo.updated) != 1 || repo.updated[0].Status != domain.DispatchSent {
		t.Error("bulk dispatch with any success should be marked sent")
	}
}

func TestSendBulkAllFailures(t *testing.T) {
	oauth := &fakeOAuth{token: "access-1"}
	serverErr := out.NewProviderError(domain.ProviderGmail, out.ProviderErrServer, "upstream 500", nil, true)
	provider := &fakeSendProvider{
		name:     domain.ProviderGmail,
		sendErrs: []error{serverErr, serverErr},
	}
	repo := &fakeDispatchRepo{}
	svc := newTestSendService(oauth, provider, repo, nil)

	result, err := svc.SendBulk(context.Background(), uuid.New(), in.BulkSendRequest{
		Recipients: []string{"a@example.com", "b@example.com"},
		Subject:    "Update",
		Body:       "Body",
		Provider:   domain.ProviderGmail,
	})
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}
	if result.Sent != 0 || result.Failed != 2 {
		t.Errorf("result sent=%d failed=%d, want 0/2", result.Sent, result.Failed)
	}
	if len(repo.updated) != 1 || repo.updated[0].Status != domain.DispatchFailed {
		t.Error("bulk dispatch with no successes should be marked failed")
	}
}

func TestSendBulkRejectsEmptyRecipients(t *testing.T) {
	svc := newTestSendService(&fakeOAuth{token: "t"},
		&fakeSendProvider{name: domain.ProviderGmail}, &fakeDispatchRepo{}, nil)

	_, err := svc.SendBulk(context.Background(), uuid.New(), in.BulkSendRequest{
		Subject:  "Update",
		Body:     "Body",
		Provider: domain.ProviderGmail,
	})
	if apperr.CodeOf(err) != apperr.CodeInvalidInput {
		t.Errorf("error code = %q, want INVALID_INPUT", apperr.CodeOf(err))
	}
}

func TestSendBulkRejectsAnyBadRecipient(t *testing.T) {
	provider := &fakeSendProvider{name: domain.ProviderGmail}
	svc := newTestSendService(&fakeOAuth{token: "t"}, provider, &fakeDispatchRepo{}, nil)

	_, err := svc.SendBulk(context.Background(), uuid.New(), in.BulkSendRequest{
		Recipients: []string{"ok@example.com", "broken"},
		Subject:    "Update",
		Body:       "Body",
		Provider:   domain.ProviderGmail,
	})
	if apperr.CodeOf(err) != apperr.CodeInvalidInput {
		t.Errorf("error code = %q, want INVALID_INPUT", apperr.CodeOf(err))
	}
	if provider.sendCalls != 0 {
		t.Error("nothing should be sent when validation fails")
	}
}

// ===========================================================================
// History
// ===========================================================================

func TestHistoryClampsPaging(t *testing.T) {
	now := time.Now()
	repo := &fakeDispatchRepo{
		listItems: []*domain.Dispatch{{ID: uuid.New(), CreatedAt: now}},
		listTotal: 1,
	}
	svc := newTestSendService(&fakeOAuth{}, &fakeSendProvider{name: domain.ProviderGmail}, repo, nil)

	items, total, err := svc.History(context.Background(), uuid.New(), 0, 500)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(items) != 1 || total != 1 {
		t.Errorf("items=%d total=%d, want 1/1", len(items), total)
	}
	if repo.lastPage != 1 {
		t.Errorf("page = %d, want clamped to 1", repo.lastPage)
	}
	if repo.lastSize != 20 {
		t.Errorf("page size = %d, want clamped to 20", repo.lastSize)
	}
}
