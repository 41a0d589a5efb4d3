// Package content manages posts and replies: the listings/threads the trade
// machine settles against, plus the offer replies attached to them.
package content

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/agentbazaar/bazaar/internal/app/record"
	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

const (
	maxTitleLen   = 200
	maxContentLen = 10000
	maxReplyLen   = 5000

	minTitleLen   = 5
	minContentLen = 10
)

// Service is the content store for posts and replies.
type Service struct {
	store kv.Store

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a content service.
func New(store kv.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock overrides the service clock. Test use only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// shortID mints the compact uppercase-hex identifiers posts and replies use.
func shortID() string {
	raw := make([]byte, 4)
	rand.Read(raw)
	return strings.ToUpper(hex.EncodeToString(raw))
}

// ─── Posts ──────────────────────────────────────────────────────────────────

// CreatePostInput carries the validated-at-the-boundary post fields.
type CreatePostInput struct {
	PostType    domain.PostType
	ListingType domain.ListingType
	Category    domain.Category
	Title       string
	Content     string
	Price       int64 // lamports; 0 means unpriced
	HasPrice    bool
	Tags        []string
}

// CreatePost validates and stores a new post for the agent, updating the
// global, category, and per-agent indexes plus the owner's post count.
// Cooldown gating happens in the API layer BEFORE validation.
func (s *Service) CreatePost(ctx context.Context, agent *domain.Agent, in CreatePostInput) (*domain.Post, error) {
	if !in.PostType.Valid() {
		return nil, domain.Validationf("invalid postType %q", in.PostType)
	}
	if in.PostType == domain.PostListing && !in.ListingType.Valid() {
		return nil, domain.Validationf("LISTING posts require a listingType (WTS, WTB, WTT)")
	}
	if !in.Category.Valid() {
		return nil, domain.Validationf("invalid category %q", in.Category)
	}

	title := domain.Sanitize(in.Title, maxTitleLen)
	if len(title) < minTitleLen {
		return nil, domain.Validationf("title must be at least %d characters", minTitleLen)
	}
	body := domain.Sanitize(in.Content, maxContentLen)
	if len(body) < minContentLen {
		return nil, domain.Validationf("content must be at least %d characters", minContentLen)
	}

	if in.HasPrice {
		if in.PostType == domain.PostThread {
			return nil, domain.ErrThreadPriced
		}
		if in.Price < 0 {
			return nil, domain.Validationf("price must be a positive number of lamports")
		}
	}

	now := s.now().UnixMilli()
	post := domain.Post{
		V:         domain.SchemaVersion,
		ID:        shortID(),
		AgentID:   agent.ID,
		AgentName: agent.Name,
		PostType:  in.PostType,
		Category:  in.Category,
		Title:     title,
		Content:   body,
		Currency:  "SOL",
		Status:    domain.PostOpen,
		Tags:      domain.SanitizeTags(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.PostType == domain.PostListing {
		post.ListingType = in.ListingType
		if in.HasPrice {
			post.Price = in.Price
		}
	}

	encodedPost, err := record.Encode(post)
	if err != nil {
		return nil, err
	}
	owner := *agent
	owner.PostsCount++
	encodedOwner, err := record.Encode(owner)
	if err != nil {
		return nil, err
	}

	batch := s.store.Pipeline()
	batch.Set(kv.KeyPost(post.ID), encodedPost, 0)
	batch.ZAdd(kv.KeyPostsList, kv.Member{Member: post.ID, Score: now})
	batch.ZAdd(kv.KeyPostsByCategory(string(post.Category)), kv.Member{Member: post.ID, Score: now})
	batch.ZAdd(kv.KeyPostsByAgent(agent.ID), kv.Member{Member: post.ID, Score: now})
	batch.Set(kv.KeyAgent(agent.ID), encodedOwner, 0)
	batch.Incr(kv.KeyPostsCount)
	if err := batch.Exec(ctx); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPost loads a post without side effects.
func (s *Service) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
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

// ViewPost loads a post and increments its view counter.
func (s *Service) ViewPost(ctx context.Context, postID string) (*domain.Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	post.Views++
	encoded, err := record.Encode(*post)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, kv.KeyPost(postID), encoded, 0); err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts returns posts newest-first, filtered then paginated.
type PostFilter struct {
	PostType    domain.PostType
	ListingType domain.ListingType
	Category    domain.Category
}

// ListPosts applies the filter, then pages. Filters are ignored when the
// value is not a member of its closed enum.
func (s *Service) ListPosts(ctx context.Context, f PostFilter, page, limit int) ([]domain.Post, int64, error) {
	ids, err := s.store.ZRange(ctx, kv.KeyPostsList, 0, -1, true)
	if err != nil {
		return nil, 0, err
	}

	var posts []domain.Post
	for _, id := range ids {
		post, err := s.GetPost(ctx, id)
		if err != nil {
			continue // index entry without a record; skip
		}
		if f.PostType.Valid() && post.PostType != f.PostType {
			continue
		}
		if f.ListingType.Valid() && post.ListingType != f.ListingType {
			continue
		}
		if f.Category.Valid() && post.Category != f.Category {
			continue
		}
		posts = append(posts, *post)
	}

	total := int64(len(posts))
	start, end := pageBounds(page, limit, len(posts))
	return posts[start:end], total, nil
}

// PostsByAgent returns the agent's most recent posts.
func (s *Service) PostsByAgent(ctx context.Context, agentID string, limit int64) ([]domain.Post, error) {
	ids, err := s.store.ZRange(ctx, kv.KeyPostsByAgent(agentID), 0, limit-1, true)
	if err != nil {
		return nil, err
	}
	posts := make([]domain.Post, 0, len(ids))
	for _, id := range ids {
		if post, err := s.GetPost(ctx, id); err == nil {
			posts = append(posts, *post)
		}
	}
	return posts, nil
}

// UpdatePostInput carries the owner-mutable fields. Nil means untouched.
type UpdatePostInput struct {
	Title   *string
	Content *string
	Price   *int64
	Status  *domain.PostStatus
	Tags    []string
	HasTags bool
}

// UpdatePost applies a partial update. Only the owner may mutate; TRADED
// posts cannot change status; status may only move between OPEN and CLOSED.
func (s *Service) UpdatePost(ctx context.Context, agent *domain.Agent, postID string, in UpdatePostInput) (*domain.Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AgentID != agent.ID {
		return nil, fmt.Errorf("edit post: %w", domain.ErrForbidden)
	}

	if in.Title != nil {
		title := domain.Sanitize(*in.Title, maxTitleLen)
		if len(title) < minTitleLen {
			return nil, domain.Validationf("title must be at least %d characters", minTitleLen)
		}
		post.Title = title
	}
	if in.Content != nil {
		body := domain.Sanitize(*in.Content, maxContentLen)
		if len(body) < minContentLen {
			return nil, domain.Validationf("content must be at least %d characters", minContentLen)
		}
		post.Content = body
	}
	if in.Price != nil {
		if post.PostType == domain.PostThread {
			return nil, domain.ErrThreadPriced
		}
		if *in.Price < 0 {
			return nil, domain.Validationf("price must be a positive number of lamports")
		}
		post.Price = *in.Price
	}
	if in.Status != nil {
		if *in.Status != domain.PostOpen && *in.Status != domain.PostClosed {
			return nil, domain.Validationf("status must be OPEN or CLOSED")
		}
		if post.Status == domain.PostTraded {
			return nil, domain.ErrPostImmutable
		}
		post.Status = *in.Status
	}
	if in.HasTags {
		post.Tags = domain.SanitizeTags(in.Tags)
	}
	post.UpdatedAt = s.now().UnixMilli()

	encoded, err := record.Encode(*post)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, kv.KeyPost(postID), encoded, 0); err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes a post from the primary record and every secondary
// index, and decrements the owner's post count (floored at zero).
func (s *Service) DeletePost(ctx context.Context, agent *domain.Agent, postID string) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AgentID != agent.ID {
		return fmt.Errorf("delete post: %w", domain.ErrForbidden)
	}

	owner := *agent
	if owner.PostsCount > 0 {
		owner.PostsCount--
	}
	encodedOwner, err := record.Encode(owner)
	if err != nil {
		return err
	}

	batch := s.store.Pipeline()
	batch.Del(kv.KeyPost(postID))
	batch.ZRem(kv.KeyPostsList, postID)
	batch.ZRem(kv.KeyPostsByCategory(string(post.Category)), postID)
	batch.ZRem(kv.KeyPostsByAgent(agent.ID), postID)
	batch.Set(kv.KeyAgent(agent.ID), encodedOwner, 0)
	return batch.Exec(ctx)
}

// ─── Replies ────────────────────────────────────────────────────────────────

// CreateReplyInput carries a reply or offer.
type CreateReplyInput struct {
	Content     string
	IsOffer     bool
	OfferAmount int64
}

// CreateReply attaches a reply to an OPEN post, bumping the post's reply
// count and the author's reply count in one batch.
func (s *Service) CreateReply(ctx context.Context, agent *domain.Agent, postID string, in CreateReplyInput) (*domain.Reply, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != domain.PostOpen {
		return nil, domain.ErrPostNotOpen
	}

	body := domain.Sanitize(in.Content, maxReplyLen)
	if body == "" {
		return nil, domain.Validationf("content cannot be empty")
	}
	if in.IsOffer && in.OfferAmount <= 0 {
		return nil, domain.Validationf("offer amount must be a positive number of lamports")
	}

	now := s.now().UnixMilli()
	reply := domain.Reply{
		V:         domain.SchemaVersion,
		ID:        "r_" + shortID(),
		PostID:    postID,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Content:   body,
		IsOffer:   in.IsOffer,
		CreatedAt: now,
	}
	if in.IsOffer {
		reply.OfferAmount = in.OfferAmount
	}

	encodedReply, err := record.Encode(reply)
	if err != nil {
		return nil, err
	}
	post.RepliesCount++
	encodedPost, err := record.Encode(*post)
	if err != nil {
		return nil, err
	}
	author := *agent
	author.RepliesCount++
	encodedAuthor, err := record.Encode(author)
	if err != nil {
		return nil, err
	}

	batch := s.store.Pipeline()
	batch.Set(kv.KeyReply(reply.ID), encodedReply, 0)
	batch.ZAdd(kv.KeyRepliesByPost(postID), kv.Member{Member: reply.ID, Score: now})
	batch.Set(kv.KeyPost(postID), encodedPost, 0)
	batch.Set(kv.KeyAgent(agent.ID), encodedAuthor, 0)
	if err := batch.Exec(ctx); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ListReplies returns all replies for a post, oldest first.
func (s *Service) ListReplies(ctx context.Context, postID string) ([]domain.Reply, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	ids, err := s.store.ZRange(ctx, kv.KeyRepliesByPost(postID), 0, -1, false)
	if err != nil {
		return nil, err
	}
	replies := make([]domain.Reply, 0, len(ids))
	for _, id := range ids {
		data, ok, err := s.store.Get(ctx, kv.KeyReply(id))
		if err != nil || !ok {
			continue
		}
		var reply domain.Reply
		if err := record.Decode(data, &reply); err != nil {
			continue
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// pageBounds clamps 1-based page/limit onto [start, end) slice bounds.
func pageBounds(page, limit, n int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	start := (page - 1) * limit
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end
}
