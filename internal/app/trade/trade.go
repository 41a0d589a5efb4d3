// Package trade implements the settlement engine: the PENDING → COMPLETED /
// CANCELLED lifecycle, on-chain payment verification, and the exactly-once
// signature binding that prevents one transfer from settling two trades.
package trade

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

// completionLockTTL bounds how long a crashed completion can hold a trade.
// After expiry a retry with the same signature settles idempotently.
const completionLockTTL = 30 * time.Second

// Service drives the trade lifecycle against the store and the chain oracle.
type Service struct {
	store  kv.Store
	oracle domain.ChainOracle

	now func() time.Time
}

// New creates a trade service.
func New(store kv.Store, oracle domain.ChainOracle) *Service {
	return &Service{store: store, oracle: oracle, now: time.Now}
}

// SetClock overrides the service clock. Test use only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// PaymentInstructions tells the buyer where to send funds.
type PaymentInstructions struct {
	Recipient string `json:"recipient"` // seller wallet address
	Amount    int64  `json:"amount"`    // lamports
	Memo      string `json:"memo"`      // trade ID, for the buyer's records
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Create opens a PENDING trade against an OPEN listing. The listing owner is
// the seller; the caller is the buyer. Discussion threads and non-OPEN posts
// are not tradeable, and an agent cannot trade against its own listing.
func (s *Service) Create(ctx context.Context, buyer *domain.Agent, postID string, amount int64) (*domain.Trade, *PaymentInstructions, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if !post.Tradeable() {
		return nil, nil, domain.ErrNotTradeable
	}
	if post.AgentID == buyer.ID {
		return nil, nil, domain.ErrSelfTrade
	}
	if amount <= 0 {
		return nil, nil, domain.Validationf("amount must be a positive number of lamports")
	}

	seller, err := s.getAgent(ctx, post.AgentID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UnixMilli()
	trade := domain.Trade{
		V:         domain.SchemaVersion,
		ID:        "trade_" + uuid.NewString(),
		PostID:    post.ID,
		SellerID:  seller.ID,
		BuyerID:   buyer.ID,
		Amount:    amount,
		Status:    domain.TradePending,
		CreatedAt: now,
	}
	encoded, err := record.Encode(trade)
	if err != nil {
		return nil, nil, err
	}

	batch := s.store.Pipeline()
	batch.Set(kv.KeyTrade(trade.ID), encoded, 0)
	batch.ZAdd(kv.KeyTradesList, kv.Member{Member: trade.ID, Score: now})
	batch.ZAdd(kv.KeyTradesPending, kv.Member{Member: trade.ID, Score: now})
	batch.ZAdd(kv.KeyTradesByAgent(buyer.ID), kv.Member{Member: trade.ID, Score: now})
	batch.ZAdd(kv.KeyTradesByAgent(seller.ID), kv.Member{Member: trade.ID, Score: now})
	batch.Incr(kv.KeyTradesCount)
	if err := batch.Exec(ctx); err != nil {
		return nil, nil, err
	}

	slog.Info("trade_created",
		"trade_id", trade.ID,
		"post_id", post.ID,
		"buyer_id", buyer.ID,
		"seller_id", seller.ID,
		"amount", amount)

	return &trade, &PaymentInstructions{
		Recipient: seller.WalletAddress,
		Amount:    amount,
		Memo:      trade.ID,
	}, nil
}

// Cancel moves a PENDING trade to CANCELLED. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, agent *domain.Agent, tradeID string) (*domain.Trade, error) {
	trade, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Party(agent.ID) {
		return nil, domain.ErrNotParty
	}
	if trade.Status != domain.TradePending {
		return nil, domain.ErrTradeNotPending
	}

	trade.Status = domain.TradeCancelled
	encoded, err := record.Encode(*trade)
	if err != nil {
		return nil, err
	}

	batch := s.store.Pipeline()
	batch.Set(kv.KeyTrade(trade.ID), encoded, 0)
	batch.ZRem(kv.KeyTradesPending, trade.ID)
	if err := batch.Exec(ctx); err != nil {
		return nil, err
	}

	slog.Info("trade_cancelled", "trade_id", trade.ID, "by", agent.ID)
	return trade, nil
}

// Complete settles a PENDING trade. Only the buyer may complete, and only
// with a transfer signature the chain oracle confirms moved at least the
// trade amount from the buyer's wallet to the seller's.
//
// Exactly-once settlement rests on two conditional writes:
//
//  1. a short-TTL completion lock (trade:completing:<id>) making this trade
//     single-writer while verification runs — the trade's PENDING state is
//     re-validated after the lock is won, so a completion that settled and
//     released the lock cannot be settled a second time — and
//  2. the signature binding (tx:<sig> -> trade ID) claimed BEFORE the
//     settlement batch, so a signature can never pay for two trades. A
//     binding that already names this same trade is a crashed earlier
//     attempt and the settlement is retried idempotently.
func (s *Service) Complete(ctx context.Context, buyer *domain.Agent, tradeID, txSignature string) (*domain.Trade, error) {
	if txSignature == "" {
		return nil, domain.Validationf("txSignature is required")
	}

	trade, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.BuyerID != buyer.ID {
		if !trade.Party(buyer.ID) {
			return nil, domain.ErrNotParty
		}
		return nil, domain.ErrOnlyBuyer
	}
	if trade.Status != domain.TradePending {
		return nil, domain.ErrTradeNotPending
	}

	// Cheap pre-check before hitting the oracle. The authoritative check is
	// the SetNX below; this only rejects obvious reuse early.
	if boundTo, ok, err := s.store.Get(ctx, kv.KeyTxSignature(txSignature)); err != nil {
		return nil, err
	} else if ok && boundTo != trade.ID {
		return nil, domain.ErrSignatureUsed
	}

	lockKey := kv.KeyTradeCompletion(trade.ID)
	locked, err := s.store.SetNX(ctx, lockKey, buyer.ID, completionLockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, domain.ErrCompletionInFlight
	}
	// Released explicitly inside the settlement batch on success; on every
	// failure path we drop it here so the buyer can retry immediately.
	settled := false
	defer func() {
		if !settled {
			if err := s.store.Del(context.WithoutCancel(ctx), lockKey); err != nil {
				slog.Warn("completion_lock_release_failed", "trade_id", trade.ID, "error", err)
			}
		}
	}()

	// The PENDING check above raced with any settlement that dropped this
	// lock between our read and our claim. Now that this call is the single
	// writer, re-read the trade and re-validate its state before touching
	// anything.
	trade, err = s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status != domain.TradePending {
		return nil, domain.ErrTradeNotPending
	}

	// Settle against fresh agent records, not the auth-time snapshot.
	buyerRec, err := s.getAgent(ctx, trade.BuyerID)
	if err != nil {
		return nil, err
	}
	seller, err := s.getAgent(ctx, trade.SellerID)
	if err != nil {
		return nil, err
	}

	if err := s.oracle.VerifyTransfer(ctx, txSignature, buyerRec.WalletAddress, seller.WalletAddress, trade.Amount); err != nil {
		slog.Info("trade_verification_failed",
			"trade_id", trade.ID,
			"tx_signature", txSignature,
			"error", err)
		return nil, err
	}

	// Claim the signature before writing anything. If the claim loses, the
	// signature already settled (or is settling) some trade: same trade
	// means a crashed earlier attempt and we finish its settlement; any
	// other trade is a double-spend.
	claimed, err := s.store.SetNX(ctx, kv.KeyTxSignature(txSignature), trade.ID, 0)
	if err != nil {
		return nil, err
	}
	if !claimed {
		boundTo, ok, err := s.store.Get(ctx, kv.KeyTxSignature(txSignature))
		if err != nil {
			return nil, err
		}
		if !ok || boundTo != trade.ID {
			return nil, domain.ErrSignatureUsed
		}
	}

	now := s.now().UnixMilli()
	trade.Status = domain.TradeCompleted
	trade.TxSignature = txSignature
	trade.CompletedAt = now

	applySettlement(buyerRec, trade.Amount)
	applySettlement(seller, trade.Amount)

	encodedTrade, err := record.Encode(*trade)
	if err != nil {
		return nil, err
	}
	encodedBuyer, err := record.Encode(*buyerRec)
	if err != nil {
		return nil, err
	}
	encodedSeller, err := record.Encode(*seller)
	if err != nil {
		return nil, err
	}

	batch := s.store.Pipeline()
	batch.Set(kv.KeyTrade(trade.ID), encodedTrade, 0)
	batch.ZRem(kv.KeyTradesPending, trade.ID)
	batch.Set(kv.KeyAgent(buyerRec.ID), encodedBuyer, 0)
	batch.Set(kv.KeyAgent(seller.ID), encodedSeller, 0)

	// The listing goes TRADED if it still exists; a deleted listing does
	// not block settlement.
	if post, err := s.getPost(ctx, trade.PostID); err == nil {
		post.Status = domain.PostTraded
		post.UpdatedAt = now
		if encodedPost, err := record.Encode(*post); err == nil {
			batch.Set(kv.KeyPost(post.ID), encodedPost, 0)
		}
	}

	batch.Del(lockKey)
	if err := batch.Exec(ctx); err != nil {
		return nil, err
	}
	settled = true

	slog.Info("trade_completed",
		"trade_id", trade.ID,
		"tx_signature", txSignature,
		"amount", trade.Amount,
		"buyer_rank", buyerRec.Rank,
		"seller_rank", seller.Rank)
	return trade, nil
}

// applySettlement folds one completed trade into an agent's aggregates.
func applySettlement(agent *domain.Agent, amount int64) {
	agent.TotalTrades++
	agent.SuccessfulTrades++
	agent.TotalVolume += amount
	agent.Recalculate()
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Get returns a trade. Only the two parties may view it.
func (s *Service) Get(ctx context.Context, agent *domain.Agent, tradeID string) (*domain.Trade, error) {
	trade, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Party(agent.ID) {
		return nil, domain.ErrNotParty
	}
	return trade, nil
}

// ListByAgent returns the agent's trades newest-first, optionally filtered
// by status. An unknown status filters nothing out.
func (s *Service) ListByAgent(ctx context.Context, agentID string, status domain.TradeStatus, limit int64) ([]domain.Trade, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	ids, err := s.store.ZRange(ctx, kv.KeyTradesByAgent(agentID), 0, -1, true)
	if err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0, limit)
	for _, id := range ids {
		trade, err := s.load(ctx, id)
		if err != nil {
			continue
		}
		if status != "" && trade.Status != status {
			continue
		}
		trades = append(trades, *trade)
		if int64(len(trades)) >= limit {
			break
		}
	}
	return trades, nil
}

// PendingCount returns the number of trades awaiting settlement.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.store.ZCard(ctx, kv.KeyTradesPending)
}

// ─── Record loading ─────────────────────────────────────────────────────────

func (s *Service) load(ctx context.Context, tradeID string) (*domain.Trade, error) {
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

func (s *Service) getPost(ctx context.Context, postID string) (*domain.Post, error) {
	data, ok, err := s.store.Get(ctx, kv.KeyPost(postID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	}
	var post domain.Post
	if err := record.Decode(data, &post); err != nil {
		return nil, err
	}
	return &post, nil
}
