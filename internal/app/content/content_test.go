package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentbazaar/bazaar/internal/app/record"
	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

func newService(t *testing.T) (*Service, *kv.Memory) {
	t.Helper()
	store := kv.NewMemory()
	s := New(store)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return current })
	return s, store
}

// seedAgent stores a minimal agent record so counter updates have a target.
func seedAgent(t *testing.T, store *kv.Memory, id, name string) *domain.Agent {
	t.Helper()
	agent := domain.Agent{
		V:          domain.SchemaVersion,
		ID:         id,
		Name:       name,
		Rank:       domain.RankNewcomer,
		Reputation: domain.InitialReputation,
	}
	encoded, err := record.Encode(agent)
	if err != nil {
		t.Fatalf("encode agent: %v", err)
	}
	if err := store.Set(context.Background(), kv.KeyAgent(id), encoded, 0); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return &agent
}

func listingInput() CreatePostInput {
	return CreatePostInput{
		PostType:    domain.PostListing,
		ListingType: domain.ListingWTS,
		Category:    domain.CategoryExploit,
		Title:       "Selling a rare artifact",
		Content:     "A very detailed description of the artifact.",
		Price:       5_000_000,
		HasPrice:    true,
		Tags:        []string{"rare", "artifact"},
	}
}

func TestCreatePost(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	agent := seedAgent(t, store, "agent_1", "Seller")

	post, err := s.CreatePost(ctx, agent, listingInput())
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if post.Status != domain.PostOpen {
		t.Errorf("Status = %s, want OPEN", post.Status)
	}
	if post.AgentName != "Seller" {
		t.Errorf("AgentName = %q", post.AgentName)
	}
	if post.Price != 5_000_000 {
		t.Errorf("Price = %d", post.Price)
	}
	if !post.Tradeable() {
		t.Error("fresh listing should be tradeable")
	}

	// Owner's post counter moves with the creation.
	owner, err := loadAgent(ctx, store, "agent_1")
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	if owner.PostsCount != 1 {
		t.Errorf("owner PostsCount = %d, want 1", owner.PostsCount)
	}

	// Indexed in the global and category lists.
	ids, _ := store.ZRange(ctx, kv.KeyPostsList, 0, -1, false)
	if len(ids) != 1 || ids[0] != post.ID {
		t.Errorf("posts:list = %v", ids)
	}
	ids, _ = store.ZRange(ctx, kv.KeyPostsByCategory(string(domain.CategoryExploit)), 0, -1, false)
	if len(ids) != 1 {
		t.Errorf("category index = %v", ids)
	}
}

// loadAgent reads an agent record straight from the store.
func loadAgent(ctx context.Context, store kv.Store, id string) (*domain.Agent, error) {
	data, _, err := store.Get(ctx, kv.KeyAgent(id))
	if err != nil {
		return nil, err
	}
	var agent domain.Agent
	if err := record.Decode(data, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func TestCreatePostValidation(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	agent := seedAgent(t, store, "agent_1", "Seller")

	tests := []struct {
		name   string
		mutate func(*CreatePostInput)
	}{
		{"bad postType", func(in *CreatePostInput) { in.PostType = "AUCTION" }},
		{"listing without listingType", func(in *CreatePostInput) { in.ListingType = "" }},
		{"bad category", func(in *CreatePostInput) { in.Category = "MISC" }},
		{"short title", func(in *CreatePostInput) { in.Title = "hey" }},
		{"short content", func(in *CreatePostInput) { in.Content = "too short" }},
		{"negative price", func(in *CreatePostInput) { in.Price = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := listingInput()
			tt.mutate(&in)
			if _, err := s.CreatePost(ctx, agent, in); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want validation", err)
			}
		})
	}
}

func TestThreadCannotCarryPrice(t *testing.T) {
	s, store := newService(t)
	agent := seedAgent(t, store, "agent_1", "Poster")

	in := listingInput()
	in.PostType = domain.PostThread
	in.ListingType = ""
	in.Category = domain.CategoryDiscussion

	_, err := s.CreatePost(context.Background(), agent, in)
	if !errors.Is(err, domain.ErrThreadPriced) {
		t.Errorf("error = %v, want ErrThreadPriced", err)
	}

	in.HasPrice = false
	in.Price = 0
	post, err := s.CreatePost(context.Background(), agent, in)
	if err != nil {
		t.Fatalf("unpriced thread: %v", err)
	}
	if post.Tradeable() {
		t.Error("threads must never be tradeable")
	}
}

func TestViewPostCountsViews(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	agent := seedAgent(t, store, "agent_1", "Seller")

	created, err := s.CreatePost(ctx, agent, listingInput())
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.ViewPost(ctx, created.ID); err != nil {
			t.Fatalf("ViewPost: %v", err)
		}
	}
	post, _ := s.GetPost(ctx, created.ID)
	if post.Views != 3 {
		t.Errorf("Views = %d, want 3", post.Views)
	}
}

func TestListPostsFiltersAndPages(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	agent := seedAgent(t, store, "agent_1", "Seller")

	for i := 0; i < 3; i++ {
		if _, err := s.CreatePost(ctx, agent, listingInput()); err != nil {
			t.Fatalf("CreatePost: %v", err)
		}
	}
	thread := listingInput()
	thread.PostType = domain.PostThread
	thread.ListingType = ""
	thread.Category = domain.CategoryDiscussion
	thread.HasPrice = false
	if _, err := s.CreatePost(ctx, agent, thread); err != nil {
		t.Fatalf("create thread: %v", err)
	}

	all, total, err := s.ListPosts(ctx, PostFilter{}, 1, 20)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Fatalf("unfiltered = %d/%d, want 4/4", len(all), total)
	}

	listings, total, _ := s.ListPosts(ctx, PostFilter{PostType: domain.PostListing}, 1, 20)
	if total != 3 || len(listings) != 3 {
		t.Errorf("listings = %d/%d, want 3/3", len(listings), total)
	}

	page, total, _ := s.ListPosts(ctx, PostFilter{}, 2, 3)
	if total != 4 || len(page) != 1 {
		t.Errorf("page 2 = %d items (total %d), want 1 (4)", len(page), total)
	}

	// An unknown filter value is ignored rather than matching nothing.
	loose, _, _ := s.ListPosts(ctx, PostFilter{Category: "NOT_A_CATEGORY"}, 1, 20)
	if len(loose) != 4 {
		t.Errorf("unknown category filter = %d items, want 4", len(loose))
	}
}

func TestUpdatePost(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	owner := seedAgent(t, store, "agent_1", "Seller")
	stranger := seedAgent(t, store, "agent_2", "Other")

	post, err := s.CreatePost(ctx, owner, listingInput())
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	title := "An even better artifact"
	updated, err := s.UpdatePost(ctx, owner, post.ID, UpdatePostInput{Title: &title})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	if updated.Title != title {
		t.Errorf("Title = %q", updated.Title)
	}

	if _, err := s.UpdatePost(ctx, stranger, post.ID, UpdatePostInput{Title: &title}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("stranger edit error = %v, want ErrForbidden", err)
	}

	// OPEN <-> CLOSED is allowed.
	closed := domain.PostClosed
	if _, err := s.UpdatePost(ctx, owner, post.ID, UpdatePostInput{Status: &closed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	open := domain.PostOpen
	if _, err := s.UpdatePost(ctx, owner, post.ID, UpdatePostInput{Status: &open}); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	// TRADED is not a caller-settable status.
	traded := domain.PostTraded
	if _, err := s.UpdatePost(ctx, owner, post.ID, UpdatePostInput{Status: &traded}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("set TRADED error = %v, want validation", err)
	}
}

func TestDeletePostCleansIndexes(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	owner := seedAgent(t, store, "agent_1", "Seller")

	post, err := s.CreatePost(ctx, owner, listingInput())
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	owner, _ = loadAgent(ctx, store, owner.ID)

	if err := s.DeletePost(ctx, owner, post.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}

	if _, err := s.GetPost(ctx, post.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetPost after delete = %v, want ErrNotFound", err)
	}
	for _, key := range []string{
		kv.KeyPostsList,
		kv.KeyPostsByCategory(string(post.Category)),
		kv.KeyPostsByAgent(owner.ID),
	} {
		ids, _ := store.ZRange(ctx, key, 0, -1, false)
		if len(ids) != 0 {
			t.Errorf("index %s still holds %v", key, ids)
		}
	}

	reloaded, _ := loadAgent(ctx, store, owner.ID)
	if reloaded.PostsCount != 0 {
		t.Errorf("PostsCount = %d, want 0", reloaded.PostsCount)
	}

	// Deleting again: gone is gone.
	if err := s.DeletePost(ctx, reloaded, post.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestCreateReply(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	owner := seedAgent(t, store, "agent_1", "Seller")
	buyer := seedAgent(t, store, "agent_2", "Buyer")

	post, err := s.CreatePost(ctx, owner, listingInput())
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	reply, err := s.CreateReply(ctx, buyer, post.ID, CreateReplyInput{
		Content:     "I will take it",
		IsOffer:     true,
		OfferAmount: 4_000_000,
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	if !reply.IsOffer || reply.OfferAmount != 4_000_000 {
		t.Errorf("offer fields lost: %+v", reply)
	}

	replies, err := s.ListReplies(ctx, post.ID)
	if err != nil {
		t.Fatalf("ListReplies: %v", err)
	}
	if len(replies) != 1 || replies[0].ID != reply.ID {
		t.Errorf("replies = %+v", replies)
	}

	reloaded, _ := s.GetPost(ctx, post.ID)
	if reloaded.RepliesCount != 1 {
		t.Errorf("post RepliesCount = %d, want 1", reloaded.RepliesCount)
	}

	// Replies to a closed post are refused.
	closed := domain.PostClosed
	if _, err := s.UpdatePost(ctx, owner, post.ID, UpdatePostInput{Status: &closed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = s.CreateReply(ctx, buyer, post.ID, CreateReplyInput{Content: "late to the party"})
	if !errors.Is(err, domain.ErrPostNotOpen) {
		t.Errorf("reply to closed post = %v, want ErrPostNotOpen", err)
	}
}

func TestCreateReplyValidation(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	owner := seedAgent(t, store, "agent_1", "Seller")
	buyer := seedAgent(t, store, "agent_2", "Buyer")

	post, err := s.CreatePost(ctx, owner, listingInput())
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if _, err := s.CreateReply(ctx, buyer, post.ID, CreateReplyInput{Content: "   "}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank content = %v, want validation", err)
	}
	if _, err := s.CreateReply(ctx, buyer, post.ID, CreateReplyInput{
		Content: "free offer", IsOffer: true, OfferAmount: 0,
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("zero offer = %v, want validation", err)
	}
	if _, err := s.CreateReply(ctx, buyer, "post_missing", CreateReplyInput{Content: strings.Repeat("a", 10)}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing post = %v, want ErrNotFound", err)
	}
}
