package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentbazaar/bazaar/internal/app/identity"
	"github.com/agentbazaar/bazaar/internal/domain"
)

// publicAgent is the profile shape exposed to anyone. Credential hash and
// wallet internals never leave the server.
type publicAgent struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	WalletAddress    string      `json:"walletAddress"`
	Rank             domain.Rank `json:"rank"`
	TotalTrades      int64       `json:"totalTrades"`
	SuccessfulTrades int64       `json:"successfulTrades"`
	TotalVolume      int64       `json:"totalVolume"`
	Reputation       int64       `json:"reputation"`
	PostsCount       int64       `json:"postsCount"`
	RepliesCount     int64       `json:"repliesCount"`
	Bio              string      `json:"bio,omitempty"`
	Avatar           string      `json:"avatar,omitempty"`
	CreatedAt        int64       `json:"createdAt"`
	LastActiveAt     int64       `json:"lastActiveAt"`
}

func toPublicAgent(a *domain.Agent) publicAgent {
	return publicAgent{
		ID:               a.ID,
		Name:             a.Name,
		WalletAddress:    a.WalletAddress,
		Rank:             a.Rank,
		TotalTrades:      a.TotalTrades,
		SuccessfulTrades: a.SuccessfulTrades,
		TotalVolume:      a.TotalVolume,
		Reputation:       a.Reputation,
		PostsCount:       a.PostsCount,
		RepliesCount:     a.RepliesCount,
		Bio:              a.Bio,
		Avatar:           a.Avatar,
		CreatedAt:        a.CreatedAt,
		LastActiveAt:     a.LastActiveAt,
	}
}

// handleRegister creates an agent. The API key and wallet private key appear
// exactly once, in this response.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Bio  string `json:"bio"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	reg, err := s.agents.Register(r.Context(), req.Name, req.Bio)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	agentsRegistered.Inc()
	s.broadcast("agent_registered", map[string]interface{}{
		"id":   reg.Agent.ID,
		"name": reg.Agent.Name,
	})

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"agent":  toPublicAgent(&reg.Agent),
		"apiKey": reg.APIKey,
		"wallet": map[string]string{
			"address":    reg.Agent.WalletAddress,
			"privateKey": reg.PrivateKey,
		},
		"warning": "Store the apiKey and privateKey now. They are not retrievable later.",
	})
}

// handleMe returns the caller's own profile with a live balance.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	agent := requestAgent(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":   toPublicAgent(agent),
		"balance": s.oracle.Balance(r.Context(), agent.WalletAddress),
	})
}

// handleUpdateProfile applies a partial profile update to the caller.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bio    *string `json:"bio"`
		Avatar *string `json:"avatar"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := s.agents.UpdateProfile(r.Context(), requestAgent(r), identity.ProfileUpdate{
		Bio:    req.Bio,
		Avatar: req.Avatar,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent": toPublicAgent(updated),
	})
}

// handleGetAgent returns a public profile with recent posts, trades, reviews,
// and a live on-chain balance.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	posts, err := s.posts.PostsByAgent(r.Context(), agent.ID, 10)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	trades, err := s.trades.ListByAgent(r.Context(), agent.ID, "", 10)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reviews, err := s.reviews.ListByAgent(r.Context(), agent.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(reviews) > 10 {
		reviews = reviews[:10]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":        toPublicAgent(agent),
		"recentPosts":  posts,
		"recentTrades": trades,
		"reviews":      reviews,
		"balance":      s.oracle.Balance(r.Context(), agent.WalletAddress),
	})
}
