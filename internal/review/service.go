package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dealdesk/internal/domain"
	"dealdesk/internal/llm"
	"dealdesk/internal/notify"
	"dealdesk/internal/observability"
)

var (
	ErrNotFound = errors.New("deal not found")
	// ErrReviewFailed wraps any verdict-client failure. The deal is left
	// pending in that case; the caller may re-invoke the review.
	ErrReviewFailed = errors.New("review could not be completed")
)

// DealStore is the slice of persistence the review workflow touches.
type DealStore interface {
	GetDeal(ctx context.Context, dealID int64) (domain.Deal, error)
	SaveReviewOutcome(ctx context.Context, dealID int64, status domain.DealStatus, feedback *string) error
	InsertReviewLog(ctx context.Context, dealID int64, rawVerdict string, status domain.DealStatus, feedback *string) error
}

// Result is what one review invocation produced. ShortCircuited marks a
// deterministic precondition rejection that never reached the external
// service; the HTTP layer maps those to 400 instead of 200.
type Result struct {
	Status         domain.DealStatus
	Feedback       *string
	ShortCircuited bool
}

type Service struct {
	store   DealStore
	client  llm.Client
	sink    notify.Sink
	log     zerolog.Logger
	model   string
	timeout time.Duration
}

func NewService(store DealStore, client llm.Client, sink notify.Sink, log zerolog.Logger, model string, timeout time.Duration) *Service {
	return &Service{
		store:   store,
		client:  client,
		sink:    sink,
		log:     log,
		model:   model,
		timeout: timeout,
	}
}

// ReviewDeal runs one compliance review: load the deal, check the
// type-specific precondition, ask the external reviewer, persist the
// outcome. Re-invocation is permitted and simply re-runs the transition.
//
// Exactly one deal read and at most one deal write happen per call, and no
// lock is held across the external call. If the client call fails, nothing
// is persisted and the deal stays pending.
func (s *Service) ReviewDeal(ctx context.Context, dealID int64) (Result, error) {
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, fmt.Errorf("%w: id %d", ErrNotFound, dealID)
		}
		return Result{}, fmt.Errorf("load deal: %w", err)
	}

	if msg, blocked := domain.ReviewPrecondition(deal); blocked {
		if err := s.store.SaveReviewOutcome(ctx, dealID, domain.StatusRejected, &msg); err != nil {
			return Result{}, fmt.Errorf("persist precondition rejection: %w", err)
		}
		observability.ObserveReview("precondition_rejected")
		s.notifyOwner(ctx, deal, domain.StatusRejected, &msg)
		s.log.Info().Int64("deal_id", dealID).Str("reason", msg).Msg("deal rejected before external review")
		return Result{Status: domain.StatusRejected, Feedback: &msg, ShortCircuited: true}, nil
	}

	prompt := llm.BuildCompliancePrompt(deal)
	raw, err := s.client.Complete(ctx, llm.CompletionRequest{
		Model:        s.model,
		SystemPrompt: llm.COMPLIANCE_SYSTEM,
		UserPrompt:   prompt,
		Timeout:      s.timeout,
	})
	if err != nil {
		observability.ObserveReview("failed")
		return Result{}, fmt.Errorf("%w: %w", ErrReviewFailed, err)
	}

	verdict := llm.InterpretVerdict(raw)
	status := domain.StatusRejected
	if verdict.Approved {
		status = domain.StatusApproved
	}

	// One write: status and ai_feedback move together, so approval clears
	// any feedback left by an earlier rejection.
	if err := s.store.SaveReviewOutcome(ctx, dealID, status, verdict.Reason); err != nil {
		return Result{}, fmt.Errorf("persist review outcome: %w", err)
	}

	if err := s.store.InsertReviewLog(ctx, dealID, raw, status, verdict.Reason); err != nil {
		s.log.Warn().Err(err).Int64("deal_id", dealID).Msg("review log insert failed")
	}

	observability.ObserveReview(string(status))
	s.notifyOwner(ctx, deal, status, verdict.Reason)
	s.log.Info().Int64("deal_id", dealID).Str("status", string(status)).Msg("deal reviewed")

	return Result{Status: status, Feedback: verdict.Reason}, nil
}

// notifyOwner is best-effort: a sink failure never fails a review that has
// already been persisted.
func (s *Service) notifyOwner(ctx context.Context, deal domain.Deal, status domain.DealStatus, feedback *string) {
	if s.sink == nil {
		return
	}
	message := fmt.Sprintf("Your deal %q was %s", deal.Title, status)
	if status == domain.StatusRejected && feedback != nil && *feedback != "" {
		message = fmt.Sprintf("Your deal %q was rejected: %s", deal.Title, *feedback)
	}
	n := domain.Notification{
		UserID:  deal.UserID,
		Type:    "deal_reviewed",
		Title:   fmt.Sprintf("Deal %s", status),
		Message: message,
		Link:    fmt.Sprintf("/deals/%d", deal.ID),
	}
	if err := s.sink.Publish(ctx, n); err != nil {
		s.log.Warn().Err(err).Int64("deal_id", deal.ID).Msg("review notification failed")
	}
}
