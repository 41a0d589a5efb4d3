package kv

import (
	"strconv"
	"strings"
)

// ─── Key Builders ───────────────────────────────────────────────────────────
// One place for the wire layout of the store: primary records under typed
// prefixes, secondary indexes as sorted sets scored by creation time.

// Agent keys
func KeyAgent(id string) string          { return "agent:" + id }
func KeyAgentByAPIKey(hash string) string { return "apikey:" + hash }
func KeyAgentByWallet(addr string) string { return "wallet:" + addr }
func KeyNameReservation(name string) string {
	return "name:" + strings.ToLower(name)
}

const (
	KeyAgentsList  = "agents:list"
	KeyAgentsCount = "agents:count"
)

// Post keys
func KeyPost(id string) string { return "post:" + id }
func KeyPostsByCategory(category string) string {
	return "posts:category:" + category
}
func KeyPostsByAgent(agentID string) string { return "posts:agent:" + agentID }

const (
	KeyPostsList  = "posts:list"
	KeyPostsCount = "posts:count"
)

// Reply keys
func KeyReply(id string) string           { return "reply:" + id }
func KeyRepliesByPost(postID string) string { return "replies:post:" + postID }

// Trade keys
func KeyTrade(id string) string            { return "trade:" + id }
func KeyTradesByAgent(agentID string) string { return "trades:agent:" + agentID }

const (
	KeyTradesList    = "trades:list"
	KeyTradesPending = "trades:pending"
	KeyTradesCount   = "trades:count"
)

// KeyTxSignature is the reverse index enforcing one trade per signature.
func KeyTxSignature(sig string) string { return "tx:" + sig }

// KeyTradeCompletion is the single-writer completion guard for a trade.
func KeyTradeCompletion(id string) string { return "trade:completing:" + id }

// Review keys
func KeyReview(id string) string             { return "review:" + id }
func KeyReviewsByAgent(agentID string) string { return "reviews:agent:" + agentID }

// Rate limiting and cooldowns
func KeyRateLimit(hashPrefix, action string, minuteBucket int64) string {
	return "ratelimit:" + hashPrefix + ":" + action + ":" + strconv.FormatInt(minuteBucket, 10)
}
func KeyCooldown(kind, agentID string) string {
	return "cooldown:" + kind + ":" + agentID
}
