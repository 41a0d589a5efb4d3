package stats

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/agentbazaar/bazaar/internal/app/record"
	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

func TestOverview(t *testing.T) {
	store := kv.NewMemory()
	svc := New(store)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	ctx := context.Background()

	// Counters.
	store.Set(ctx, kv.KeyAgentsCount, "3", 0)
	store.Set(ctx, kv.KeyPostsCount, "5", 0)
	store.Set(ctx, kv.KeyTradesCount, "4", 0)

	// Two of three posts inside the 24h window.
	dayAgo := now.Add(-24 * time.Hour).UnixMilli()
	store.ZAdd(ctx, kv.KeyPostsList, kv.Member{Member: "p1", Score: dayAgo - 1000})
	store.ZAdd(ctx, kv.KeyPostsList, kv.Member{Member: "p2", Score: dayAgo + 1000})
	store.ZAdd(ctx, kv.KeyPostsList, kv.Member{Member: "p3", Score: now.UnixMilli()})

	store.ZAdd(ctx, kv.KeyTradesPending, kv.Member{Member: "t1", Score: now.UnixMilli()})

	// Three agents with distinct volumes; one inactive for days.
	for i, a := range []domain.Agent{
		{ID: "agent_1", Name: "High", TotalVolume: 900, Reputation: 80, LastActiveAt: now.UnixMilli()},
		{ID: "agent_2", Name: "Mid", TotalVolume: 500, Reputation: 90, LastActiveAt: now.UnixMilli()},
		{ID: "agent_3", Name: "Idle", TotalVolume: 100, Reputation: 50, LastActiveAt: dayAgo - 5000},
	} {
		a.V = domain.SchemaVersion
		encoded, err := record.Encode(a)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		store.Set(ctx, kv.KeyAgent(a.ID), encoded, 0)
		store.ZAdd(ctx, kv.KeyAgentsList, kv.Member{Member: a.ID, Score: int64(i)})
	}

	out, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	if out.TotalAgents != 3 || out.TotalPosts != 5 || out.TotalTrades != 4 {
		t.Errorf("totals = %d/%d/%d, want 3/5/4", out.TotalAgents, out.TotalPosts, out.TotalTrades)
	}
	if out.PendingTrades != 1 {
		t.Errorf("PendingTrades = %d, want 1", out.PendingTrades)
	}
	if out.PostsLast24h != 2 {
		t.Errorf("PostsLast24h = %d, want 2", out.PostsLast24h)
	}
	if out.ActiveAgents24h != 2 {
		t.Errorf("ActiveAgents24h = %d, want 2", out.ActiveAgents24h)
	}

	if len(out.TopAgentsByVolume) != 3 {
		t.Fatalf("leaderboard size = %d, want 3", len(out.TopAgentsByVolume))
	}
	if out.TopAgentsByVolume[0].ID != "agent_1" || out.TopAgentsByVolume[2].ID != "agent_3" {
		t.Errorf("leaderboard order = %v", out.TopAgentsByVolume)
	}
}

func TestOverviewEmptyStore(t *testing.T) {
	svc := New(kv.NewMemory())
	out, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if out.TotalAgents != 0 || out.PendingTrades != 0 || len(out.TopAgentsByVolume) != 0 {
		t.Errorf("empty overview = %+v", out)
	}
}

func TestLeaderboardCapped(t *testing.T) {
	store := kv.NewMemory()
	svc := New(store)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		a := domain.Agent{
			V:           domain.SchemaVersion,
			ID:          "agent_" + strconv.Itoa(i),
			Name:        "A" + strconv.Itoa(i),
			TotalVolume: int64(i * 100),
		}
		encoded, _ := record.Encode(a)
		store.Set(ctx, kv.KeyAgent(a.ID), encoded, 0)
		store.ZAdd(ctx, kv.KeyAgentsList, kv.Member{Member: a.ID, Score: int64(i)})
	}

	out, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(out.TopAgentsByVolume) != 10 {
		t.Errorf("leaderboard size = %d, want 10", len(out.TopAgentsByVolume))
	}
	if out.TopAgentsByVolume[0].TotalVolume != 1400 {
		t.Errorf("top volume = %d, want 1400", out.TopAgentsByVolume[0].TotalVolume)
	}
}
