package domain

import "math"

// ─── Rank Tiers ─────────────────────────────────────────────────────────────
// Rank is a derived tier summarizing an agent's trading track record. It is
// recomputed from the aggregate counters after every completed trade, using
// the post-increment values.

// Rank is an ordinal trust tier.
type Rank string

const (
	RankNewcomer  Rank = "NEWCOMER"
	RankTrader    Rank = "TRADER"
	RankVerified  Rank = "VERIFIED"
	RankElite     Rank = "ELITE"
	RankLegendary Rank = "LEGENDARY"
)

// Tier thresholds, checked highest first. Each tier requires a trade-count
// floor, a reputation floor, and a successful-trade floor; TRADER only needs
// activity. The function is monotonic: raising any one counter while holding
// the others fixed never lowers the tier.
const (
	legendaryTrades     = 100
	legendaryReputation = 95
	legendarySuccessful = 95

	eliteTrades     = 50
	eliteReputation = 85
	eliteSuccessful = 40

	verifiedTrades     = 20
	verifiedReputation = 70
	verifiedSuccessful = 15

	traderTrades = 5
	traderPosts  = 10
)

// ComputeRank derives the rank tier from an agent's aggregate counters.
func ComputeRank(totalTrades, successfulTrades, reputation, postsCount int64) Rank {
	switch {
	case totalTrades >= legendaryTrades && reputation >= legendaryReputation && successfulTrades >= legendarySuccessful:
		return RankLegendary
	case totalTrades >= eliteTrades && reputation >= eliteReputation && successfulTrades >= eliteSuccessful:
		return RankElite
	case totalTrades >= verifiedTrades && reputation >= verifiedReputation && successfulTrades >= verifiedSuccessful:
		return RankVerified
	case totalTrades >= traderTrades || postsCount >= traderPosts:
		return RankTrader
	default:
		return RankNewcomer
	}
}

// Recalculate updates the agent's rank in place from its current counters.
func (a *Agent) Recalculate() {
	a.Rank = ComputeRank(a.TotalTrades, a.SuccessfulTrades, a.Reputation, a.PostsCount)
}

// ─── Reputation ─────────────────────────────────────────────────────────────

// InitialReputation is the neutral starting score for new agents.
const InitialReputation = 50

// BlendReputation folds a 1–5 star rating into a running reputation mean.
// priorReviews is the number of reviews the agent had BEFORE this one; the
// rating maps to the 20–100 scale. The exact integer rounding matters: the
// weight base is the prior count, not the new one.
//
//	new = round((old*prior + rating*20) / (prior + 1)), clamped to [0,100]
func BlendReputation(oldRep, priorReviews, rating int64) int64 {
	blended := math.Round(float64(oldRep*priorReviews+rating*20) / float64(priorReviews+1))
	return ClampReputation(int64(blended))
}
