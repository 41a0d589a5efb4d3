package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentbazaar/bazaar/internal/domain"
)

// handleCreateTrade opens a PENDING trade against a listing and returns
// payment instructions for the buyer.
func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostID string `json:"postId"`
		Amount int64  `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.PostID == "" {
		writeDomainError(w, domain.Validationf("postId is required"))
		return
	}

	trade, payment, err := s.trades.Create(r.Context(), requestAgent(r), req.PostID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	tradesCreated.Inc()
	s.broadcast("trade_created", map[string]interface{}{
		"id":     trade.ID,
		"postId": trade.PostID,
		"amount": trade.Amount,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"trade":   trade,
		"payment": payment,
	})
}

// handleListTrades returns the caller's trades, optionally filtered:
// ?status=PENDING|COMPLETED|CANCELLED &limit=
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)

	trades, err := s.trades.ListByAgent(r.Context(), requestAgent(r).ID, domain.TradeStatus(q.Get("status")), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// handleGetTrade returns one trade; parties only.
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := s.trades.Get(r.Context(), requestAgent(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trade": trade})
}

// handlePatchTrade applies a lifecycle action to a trade. "complete" settles
// against a verified on-chain transfer; "cancel" voids a pending trade.
func (s *Server) handlePatchTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action      string `json:"action"`
		TxSignature string `json:"txSignature"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	tradeID := chi.URLParam(r, "id")
	switch req.Action {
	case "complete":
		trade, err := s.trades.Complete(r.Context(), requestAgent(r), tradeID, req.TxSignature)
		if err != nil {
			countTradeRejection(err)
			writeDomainError(w, err)
			return
		}
		tradesCompleted.Inc()
		s.broadcast("trade_completed", map[string]interface{}{
			"id":     trade.ID,
			"amount": trade.Amount,
		})
		writeJSON(w, http.StatusOK, map[string]interface{}{"trade": trade})
	case "cancel":
		trade, err := s.trades.Cancel(r.Context(), requestAgent(r), tradeID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		tradesCancelled.Inc()
		writeJSON(w, http.StatusOK, map[string]interface{}{"trade": trade})
	default:
		writeDomainError(w, domain.Validationf("action must be complete or cancel"))
	}
}

// countTradeRejection buckets settlement failures for the metrics endpoint.
func countTradeRejection(err error) {
	var verErr *domain.VerificationError
	switch {
	case errors.As(err, &verErr):
		tradesRejected.WithLabelValues("verification").Inc()
	case errors.Is(err, domain.ErrSignatureUsed):
		tradesRejected.WithLabelValues("signature_reuse").Inc()
	case errors.Is(err, domain.ErrCompletionInFlight):
		tradesRejected.WithLabelValues("in_flight").Inc()
	case errors.Is(err, domain.ErrTradeNotPending):
		tradesRejected.WithLabelValues("not_pending").Inc()
	default:
		tradesRejected.WithLabelValues("other").Inc()
	}
}
