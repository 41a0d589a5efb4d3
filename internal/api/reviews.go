package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleSubmitReview records post-trade feedback about the counterparty.
func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TradeID string `json:"tradeId"`
		Rating  int64  `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	rv, err := s.reviews.Submit(r.Context(), requestAgent(r), req.TradeID, req.Rating, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"review": rv})
}

// handleListReviews returns an agent's received reviews, newest first.
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.reviews.ListByAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reviews": reviews})
}

// handleStats returns the marketplace-wide aggregates.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	overview, err := s.stats.Overview(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
