package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/in"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/apperr"
	"uniworld_server/pkg/logger"
)

// SendService orchestrates outbound email: resolve a usable access
// token, deliver through the right provider adapter, and record the
// dispatch. A provider auth rejection earns exactly one forced
// refresh and resend; a second rejection is terminal.
type SendService struct {
	oauth      in.OAuthUseCase
	providers  out.ProviderRegistry
	dispatches out.DispatchRepository
	bodies     out.DispatchBodyRepository
	log        *logger.Logger
}

var _ in.MailUseCase = (*SendService)(nil)

func NewSendService(
	oauth in.OAuthUseCase,
	providers out.ProviderRegistry,
	dispatches out.DispatchRepository,
	bodies out.DispatchBodyRepository,
	log *logger.Logger,
) *SendService {
	return &SendService{
		oauth:      oauth,
		providers:  providers,
		dispatches: dispatches,
		bodies:     bodies,
		log:        log,
	}
}

// ===========================================================================
// Single send
// ===========================================================================

func (s *SendService) Send(ctx context.Context, userID uuid.UUID, req in.SendRequest) (*domain.Dispatch, error) {
	if err := validateSend(req.Recipient, req.Subject, req.Body); err != nil {
		return nil, err
	}

	p, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	// No credential means no dispatch record and no network traffic.
	token, err := s.oauth.ValidAccessToken(ctx, userID, req.Provider)
	if err != nil {
		return nil, err
	}

	d := domain.NewDispatch(userID, req.Provider, req.Recipient, req.Subject, req.Body)
	d.ProgramID = req.ProgramID
	if err := s.dispatches.Create(ctx, d); err != nil {
		return nil, apperr.Internal("record dispatch", err)
	}

	msg := &domain.OutboundMessage{
		To:      req.Recipient,
		Subject: req.Subject,
		Body:    req.Body,
		IsHTML:  req.IsHTML,
	}

	messageID, sendErr := s.deliver(ctx, p, userID, token, msg)
	s.finish(ctx, d, messageID, sendErr, req.Body)
	if sendErr != nil {
		return d, s.toAppError(req.Provider, sendErr)
	}
	return d, nil
}

// ===========================================================================
// Bulk send
// ===========================================================================

// SendBulk resolves the token once up front, then delivers to each
// recipient independently. Failures are counted, not fatal.
func (s *SendService) SendBulk(ctx context.Context, userID uuid.UUID, req in.BulkSendRequest) (*in.BulkSendResult, error) {
	if len(req.Recipients) == 0 {
		return nil, apperr.InvalidInput("recipients must not be empty")
	}
	for _, r := range req.Recipients {
		if err := validateSend(r, req.Subject, req.Body); err != nil {
			return nil, err
		}
	}

	p, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}
	token, err := s.oauth.ValidAccessToken(ctx, userID, req.Provider)
	if err != nil {
		return nil, err
	}

	d := domain.NewBulkDispatch(userID, req.Provider, req.Recipients, req.Subject, req.Body)
	if err := s.dispatches.Create(ctx, d); err != nil {
		return nil, apperr.Internal("record dispatch", err)
	}

	result := &in.BulkSendResult{Total: len(req.Recipients), Errors: make(map[string]string)}
	var lastMessageID string
	var lastErr error

	for _, recipient := range req.Recipients {
		msg := &domain.OutboundMessage{
			To:      recipient,
			Subject: req.Subject,
			Body:    req.Body,
			IsHTML:  req.IsHTML,
		}
		messageID, sendErr := s.deliver(ctx, p, userID, token, msg)
		if sendErr != nil {
			result.Failed++
			result.Errors[recipient] = sendErr.Error()
			lastErr = sendErr
			continue
		}
		result.Sent++
		lastMessageID = messageID
	}
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	if result.Sent > 0 {
		s.finish(ctx, d, lastMessageID, nil, req.Body)
	} else {
		s.finish(ctx, d, "", lastErr, req.Body)
	}

	s.log.WithProvider(req.Provider.String()).
		WithField("user_id", userID.String()).
		WithFields(map[string]any{"total": result.Total, "sent": result.Sent, "failed": result.Failed}).
		Info("bulk send completed")

	return result, nil
}

// History lists past dispatches.
func (s *SendService) History(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Dispatch, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := s.dispatches.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Internal("list dispatches", err)
	}
	return items, total, nil
}

// ===========================================================================
// Delivery core
// ===========================================================================

// deliver sends one message. If the provider rejects the token, force
// one refresh and resend; any failure after that is final.
func (s *SendService) deliver(ctx context.Context, p out.MailProvider, userID uuid.UUID, token string, msg *domain.OutboundMessage) (string, error) {
	start := time.Now()
	messageID, err := p.Send(ctx, token, msg)
	if err == nil {
		s.log.WithProvider(p.Name().String()).
			WithDuration(time.Since(start)).
			Info("email delivered")
		return messageID, nil
	}

	if !out.IsAuthError(err) {
		return "", err
	}

	s.log.WithProvider(p.Name().String()).
		WithField("user_id", userID.String()).
		Warn("provider rejected access token, forcing refresh and retrying once")

	fresh, refreshErr := s.oauth.RefreshNow(ctx, userID, p.Name())
	if refreshErr != nil {
		return "", refreshErr
	}

	messageID, retryErr := p.Send(ctx, fresh, msg)
	if retryErr != nil {
		return "", retryErr
	}
	return messageID, nil
}

// finish records the terminal dispatch state and archives the body.
// Bookkeeping failures are logged, never surfaced to the sender.
func (s *SendService) finish(ctx context.Context, d *domain.Dispatch, messageID string, sendErr error, body string) {
	if sendErr != nil {
		d.MarkFailed(sendErr)
	} else {
		d.MarkSent(messageID)
	}

	if err := s.dispatches.UpdateOutcome(ctx, d); err != nil {
		s.log.WithError(err).WithField("dispatch_id", d.ID.String()).
			Error("failed to record dispatch outcome")
	}
	if s.bodies != nil {
		if err := s.bodies.Save(ctx, d.ID, body); err != nil {
			s.log.WithError(err).WithField("dispatch_id", d.ID.String()).
				Warn("failed to archive dispatch body")
		}
	}
}

// toAppError folds provider failures into the API error taxonomy.
func (s *SendService) toAppError(provider domain.Provider, err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var pe *out.ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case out.ProviderErrAuth, out.ProviderErrTokenExpired:
			return apperr.ProviderAuth(provider.String(), err)
		case out.ProviderErrRateLimit:
			return apperr.RateLimited(provider.String(), err)
		default:
			return apperr.ProviderTransport(provider.String(), err)
		}
	}
	return apperr.SendFailed(fmt.Sprintf("send via %s failed", provider), err)
}

// ===========================================================================
// Validation
// ===========================================================================

func validateSend(recipient, subject, body string) error {
	if strings.TrimSpace(recipient) == "" {
		return apperr.InvalidInput("recipient is required")
	}
	if _, err := mail.ParseAddress(recipient); err != nil {
		return apperr.InvalidInput(fmt.Sprintf("invalid recipient address: %s", recipient))
	}
	if strings.TrimSpace(subject) == "" {
		return apperr.InvalidInput("subject is required")
	}
	if strings.TrimSpace(body) == "" {
		return apperr.InvalidInput("body is required")
	}
	return nil
}
