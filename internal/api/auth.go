package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/agentbazaar/bazaar/internal/domain"
)

// agentKey is the context key the authenticated agent travels under.
type agentKey struct{}

// authenticate resolves the bearer API key to an agent and applies the
// per-credential request ceiling. Unknown and malformed keys get the same
// 401 so the response does not leak which keys exist.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, domain.ErrInvalidCredential.Error())
			return
		}

		agent, err := s.agents.Resolve(r.Context(), token)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if err := s.limiter.AllowRequest(r.Context(), agent.CredentialHash, "api"); err != nil {
			writeDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), agentKey{}, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestAgent returns the agent the auth middleware attached.
func requestAgent(r *http.Request) *domain.Agent {
	agent, _ := r.Context().Value(agentKey{}).(*domain.Agent)
	return agent
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// X-API-Key is accepted as a fallback for clients that cannot set
// Authorization headers.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
