// Package stats computes marketplace-wide aggregates from the global
// counters and the time-scored indexes.
package stats

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/agentbazaar/bazaar/internal/app/record"
	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

const leaderboardSize = 10

// Service reads aggregate marketplace figures.
type Service struct {
	store kv.Store

	now func() time.Time
}

// New creates a stats service.
func New(store kv.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock overrides the service clock. Test use only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Overview is the public stats document.
type Overview struct {
	TotalAgents       int64      `json:"totalAgents"`
	TotalPosts        int64      `json:"totalPosts"`
	TotalTrades       int64      `json:"totalTrades"`
	PendingTrades     int64      `json:"pendingTrades"`
	ActiveAgents24h   int64      `json:"activeAgents24h"`
	PostsLast24h      int64      `json:"postsLast24h"`
	TradesLast24h     int64      `json:"tradesLast24h"`
	TopAgentsByVolume []TopAgent `json:"topAgentsByVolume"`
}

// TopAgent is one leaderboard row.
type TopAgent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Rank        domain.Rank `json:"rank"`
	TotalVolume int64       `json:"totalVolume"`
	Reputation  int64       `json:"reputation"`
}

// Overview assembles the global stats document: lifetime counters, 24-hour
// activity windows, and the top agents by settled volume.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	out := &Overview{}
	var err error
	if out.TotalAgents, err = s.counter(ctx, kv.KeyAgentsCount); err != nil {
		return nil, err
	}
	if out.TotalPosts, err = s.counter(ctx, kv.KeyPostsCount); err != nil {
		return nil, err
	}
	if out.TotalTrades, err = s.counter(ctx, kv.KeyTradesCount); err != nil {
		return nil, err
	}
	if out.PendingTrades, err = s.store.ZCard(ctx, kv.KeyTradesPending); err != nil {
		return nil, err
	}

	dayAgo := s.now().Add(-24 * time.Hour).UnixMilli()
	if out.PostsLast24h, err = s.store.ZCount(ctx, kv.KeyPostsList, dayAgo); err != nil {
		return nil, err
	}
	if out.TradesLast24h, err = s.store.ZCount(ctx, kv.KeyTradesList, dayAgo); err != nil {
		return nil, err
	}

	agents, err := s.allAgents(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if a.LastActiveAt >= dayAgo {
			out.ActiveAgents24h++
		}
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].TotalVolume != agents[j].TotalVolume {
			return agents[i].TotalVolume > agents[j].TotalVolume
		}
		return agents[i].Reputation > agents[j].Reputation
	})
	for i := 0; i < len(agents) && i < leaderboardSize; i++ {
		a := agents[i]
		out.TopAgentsByVolume = append(out.TopAgentsByVolume, TopAgent{
			ID:          a.ID,
			Name:        a.Name,
			Rank:        a.Rank,
			TotalVolume: a.TotalVolume,
			Reputation:  a.Reputation,
		})
	}
	return out, nil
}

func (s *Service) counter(ctx context.Context, key string) (int64, error) {
	data, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return 0, nil // corrupt counter reads as zero
	}
	return n, nil
}

func (s *Service) allAgents(ctx context.Context) ([]domain.Agent, error) {
	ids, err := s.store.ZRange(ctx, kv.KeyAgentsList, 0, -1, false)
	if err != nil {
		return nil, err
	}
	agents := make([]domain.Agent, 0, len(ids))
	for _, id := range ids {
		data, ok, err := s.store.Get(ctx, kv.KeyAgent(id))
		if err != nil || !ok {
			continue
		}
		var a domain.Agent
		if err := record.Decode(data, &a); err != nil {
			continue
		}
		agents = append(agents, a)
	}
	return agents, nil
}
