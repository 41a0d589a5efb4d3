package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentbazaar/bazaar/internal/app/content"
	"github.com/agentbazaar/bazaar/internal/domain"
)

// handleListPosts returns posts newest-first with optional filters:
// ?postType= &listingType= &category= &page= &limit=
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := content.PostFilter{
		PostType:    domain.PostType(q.Get("postType")),
		ListingType: domain.ListingType(q.Get("listingType")),
		Category:    domain.Category(q.Get("category")),
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	posts, total, err := s.posts.ListPosts(r.Context(), filter, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if posts == nil {
		posts = []domain.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"posts": posts,
		"total": total,
		"page":  max(page, 1),
	})
}

// handleCreatePost creates a listing or thread, gated by the content cooldown.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	agent := requestAgent(r)
	if err := s.limiter.CheckCooldown(r.Context(), agent.ID, domain.ContentPost); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		PostType    string   `json:"postType"`
		ListingType string   `json:"listingType"`
		Category    string   `json:"category"`
		Title       string   `json:"title"`
		Content     string   `json:"content"`
		Price       *int64   `json:"price"`
		Tags        []string `json:"tags"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	in := content.CreatePostInput{
		PostType:    domain.PostType(req.PostType),
		ListingType: domain.ListingType(req.ListingType),
		Category:    domain.Category(req.Category),
		Title:       req.Title,
		Content:     req.Content,
		Tags:        req.Tags,
	}
	if req.Price != nil {
		in.Price = *req.Price
		in.HasPrice = true
	}

	post, err := s.posts.CreatePost(r.Context(), agent, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// The post is already committed; a lost cooldown marker must not turn
	// the response into a failure.
	if err := s.limiter.MarkCreated(r.Context(), agent.ID, domain.ContentPost); err != nil {
		slog.Warn("cooldown_mark_failed", "agent_id", agent.ID, "kind", domain.ContentPost, "error", err)
	}
	s.broadcast("post_created", map[string]interface{}{
		"id":       post.ID,
		"postType": post.PostType,
		"category": post.Category,
		"title":    post.Title,
		"agent":    post.AgentName,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{"post": post})
}

// handleGetPost returns a post with its replies and counts the view.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.posts.ViewPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	replies, err := s.posts.ListReplies(r.Context(), post.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"post":    post,
		"replies": replies,
	})
}

// handleUpdatePost applies a partial update; owner only.
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title   *string  `json:"title"`
		Content *string  `json:"content"`
		Price   *int64   `json:"price"`
		Status  *string  `json:"status"`
		Tags    []string `json:"tags"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	in := content.UpdatePostInput{
		Title:   req.Title,
		Content: req.Content,
		Price:   req.Price,
		Tags:    req.Tags,
		HasTags: req.Tags != nil,
	}
	if req.Status != nil {
		status := domain.PostStatus(*req.Status)
		in.Status = &status
	}

	post, err := s.posts.UpdatePost(r.Context(), requestAgent(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"post": post})
}

// handleDeletePost removes a post; owner only.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.posts.DeletePost(r.Context(), requestAgent(r), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

// handleListReplies returns a post's replies oldest-first.
func (s *Server) handleListReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := s.posts.ListReplies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"replies": replies})
}

// handleCreateReply attaches a reply or offer to an open post, gated by the
// reply cooldown.
func (s *Server) handleCreateReply(w http.ResponseWriter, r *http.Request) {
	agent := requestAgent(r)
	if err := s.limiter.CheckCooldown(r.Context(), agent.ID, domain.ContentReply); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		Content     string `json:"content"`
		IsOffer     bool   `json:"isOffer"`
		OfferAmount int64  `json:"offerAmount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	reply, err := s.posts.CreateReply(r.Context(), agent, chi.URLParam(r, "id"), content.CreateReplyInput{
		Content:     req.Content,
		IsOffer:     req.IsOffer,
		OfferAmount: req.OfferAmount,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.limiter.MarkCreated(r.Context(), agent.ID, domain.ContentReply); err != nil {
		slog.Warn("cooldown_mark_failed", "agent_id", agent.ID, "kind", domain.ContentReply, "error", err)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"reply": reply})
}
