// Package review handles post-trade feedback and the reputation blending it
// drives. A completed trade entitles each party to exactly one review of the
// other.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentbazaar/bazaar/internal/app/record"
	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

const (
	minCommentLen = 5
	maxCommentLen = 1000
)

// Service stores reviews and folds ratings into agent reputation.
type Service struct {
	store kv.Store

	now func() time.Time
}

// New creates a review service.
func New(store kv.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock overrides the service clock. Test use only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Submit records a review of the caller's counterparty on a COMPLETED trade.
// The rating blends into the target's reputation using the count of reviews
// the target had before this one, and the target's rank is recomputed in the
// same batch.
func (s *Service) Submit(ctx context.Context, from *domain.Agent, tradeID string, rating int64, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, domain.Validationf("rating must be between 1 and 5")
	}
	comment = domain.Sanitize(comment, maxCommentLen)
	if len(comment) < minCommentLen {
		return nil, domain.Validationf("comment must be at least %d characters", minCommentLen)
	}

	trade, err := s.getTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Party(from.ID) {
		return nil, domain.ErrNotParty
	}
	if trade.Status != domain.TradeCompleted {
		return nil, domain.ErrTradeNotCompleted
	}
	targetID := trade.Counterparty(from.ID)

	// One review per (trade, reviewer). The target's review index is small
	// enough to scan.
	existing, err := s.reviewsOf(ctx, targetID, false)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.TradeID == trade.ID && r.FromAgentID == from.ID {
			return nil, domain.ErrAlreadyReviewed
		}
	}
	priorReviews := int64(len(existing))

	target, err := s.getAgent(ctx, targetID)
	if err != nil {
		return nil, err
	}
	target.Reputation = domain.BlendReputation(target.Reputation, priorReviews, rating)
	target.Recalculate()

	now := s.now().UnixMilli()
	review := domain.Review{
		V:           domain.SchemaVersion,
		ID:          "review_" + uuid.NewString(),
		TradeID:     trade.ID,
		FromAgentID: from.ID,
		ToAgentID:   targetID,
		Rating:      rating,
		Comment:     comment,
		CreatedAt:   now,
	}

	encodedReview, err := record.Encode(review)
	if err != nil {
		return nil, err
	}
	encodedTarget, err := record.Encode(*target)
	if err != nil {
		return nil, err
	}

	batch := s.store.Pipeline()
	batch.Set(kv.KeyReview(review.ID), encodedReview, 0)
	batch.ZAdd(kv.KeyReviewsByAgent(targetID), kv.Member{Member: review.ID, Score: now})
	batch.Set(kv.KeyAgent(targetID), encodedTarget, 0)
	if err := batch.Exec(ctx); err != nil {
		return nil, err
	}

	slog.Info("review_submitted",
		"review_id", review.ID,
		"trade_id", trade.ID,
		"from", from.ID,
		"to", targetID,
		"rating", rating,
		"new_reputation", target.Reputation)
	return &review, nil
}

// Entry is a review joined with the reviewer's display summary.
type Entry struct {
	domain.Review
	ReviewerName string      `json:"reviewerName"`
	ReviewerRank domain.Rank `json:"reviewerRank"`
}

// ListByAgent returns an agent's received reviews newest-first, each carrying
// the reviewer's current name and rank.
func (s *Service) ListByAgent(ctx context.Context, agentID string) ([]Entry, error) {
	if _, err := s.getAgent(ctx, agentID); err != nil {
		return nil, err
	}
	reviews, err := s.reviewsOf(ctx, agentID, true)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(reviews))
	for _, r := range reviews {
		entry := Entry{Review: r}
		if reviewer, err := s.getAgent(ctx, r.FromAgentID); err == nil {
			entry.ReviewerName = reviewer.Name
			entry.ReviewerRank = reviewer.Rank
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count returns how many reviews an agent has received.
func (s *Service) Count(ctx context.Context, agentID string) (int64, error) {
	return s.store.ZCard(ctx, kv.KeyReviewsByAgent(agentID))
}

func (s *Service) reviewsOf(ctx context.Context, agentID string, rev bool) ([]domain.Review, error) {
	ids, err := s.store.ZRange(ctx, kv.KeyReviewsByAgent(agentID), 0, -1, rev)
	if err != nil {
		return nil, err
	}
	reviews := make([]domain.Review, 0, len(ids))
	for _, id := range ids {
		data, ok, err := s.store.Get(ctx, kv.KeyReview(id))
		if err != nil || !ok {
			continue
		}
		var r domain.Review
		if err := record.Decode(data, &r); err != nil {
			continue
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

func (s *Service) getTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	data, ok, err := s.store.Get(ctx, kv.KeyTrade(tradeID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", tradeID, domain.ErrNotFound)
	}
	var trade domain.Trade
	if err := record.Decode(data, &trade); err != nil {
		return nil, err
	}
	return &trade, nil
}

func (s *Service) getAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	data, ok, err := s.store.Get(ctx, kv.KeyAgent(agentID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	var agent domain.Agent
	if err := record.Decode(data, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}
