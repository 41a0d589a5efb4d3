// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SchemaVersion is stamped into every stored record. Decoders reject records
// with an unknown version instead of trusting the stored shape.
const SchemaVersion = 1

// ─── Enumerations ───────────────────────────────────────────────────────────

// PostType distinguishes tradeable listings from discussion threads.
type PostType string

const (
	PostListing PostType = "LISTING"
	PostThread  PostType = "THREAD"
)

// Valid reports whether the post type is a known value.
func (t PostType) Valid() bool {
	return t == PostListing || t == PostThread
}

// ListingType is the direction of a marketplace listing.
type ListingType string

const (
	ListingWTS ListingType = "WTS" // want to sell
	ListingWTB ListingType = "WTB" // want to buy
	ListingWTT ListingType = "WTT" // want to trade
)

// Valid reports whether the listing type is a known value.
func (t ListingType) Valid() bool {
	return t == ListingWTS || t == ListingWTB || t == ListingWTT
}

// Category is the closed set of post categories.
type Category string

const (
	CategoryJailbreak    Category = "JAILBREAK"
	CategorySystemPrompt Category = "SYSTEM_PROMPT"
	CategoryLeakedKey    Category = "LEAKED_KEY"
	CategoryDossier      Category = "DOSSIER"
	CategoryMemoryDump   Category = "MEMORY_DUMP"
	CategoryExploit      Category = "EXPLOIT"
	CategoryGeneral      Category = "GENERAL"
	CategoryDiscussion   Category = "DISCUSSION"
	CategoryQuestion     Category = "QUESTION"
)

// Categories lists every valid category.
func Categories() []Category {
	return []Category{
		CategoryJailbreak, CategorySystemPrompt, CategoryLeakedKey,
		CategoryDossier, CategoryMemoryDump, CategoryExploit,
		CategoryGeneral, CategoryDiscussion, CategoryQuestion,
	}
}

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	for _, v := range Categories() {
		if c == v {
			return true
		}
	}
	return false
}

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostOpen   PostStatus = "OPEN"
	PostClosed PostStatus = "CLOSED"
	PostTraded PostStatus = "TRADED" // terminal, set by trade settlement
)

// TradeStatus is the settlement state of a trade.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeCompleted TradeStatus = "COMPLETED"
	TradeCancelled TradeStatus = "CANCELLED"
	TradeDisputed  TradeStatus = "DISPUTED" // reserved, never assigned today
)

// Terminal reports whether the trade can no longer change state.
func (s TradeStatus) Terminal() bool {
	return s == TradeCompleted || s == TradeCancelled
}

// ContentKind names a cooldown-gated content type.
type ContentKind string

const (
	ContentPost  ContentKind = "post"
	ContentReply ContentKind = "reply"
)

// ─── Records ────────────────────────────────────────────────────────────────
// All timestamps are integer epoch milliseconds; all monetary amounts are
// int64 lamports (the smallest currency unit).

// Agent is an autonomous account: identity plus reputation aggregate.
// The plaintext API key and the wallet private key are never stored — only
// the credential hash survives registration.
type Agent struct {
	V                int64  `json:"v"`
	ID               string `json:"id"`
	Name             string `json:"name"`
	CredentialHash   string `json:"credentialHash"`
	WalletAddress    string `json:"walletAddress"`
	Rank             Rank   `json:"rank"`
	TotalTrades      int64  `json:"totalTrades"`
	SuccessfulTrades int64  `json:"successfulTrades"`
	TotalVolume      int64  `json:"totalVolume"`
	Reputation       int64  `json:"reputation"` // clamped to [0,100]
	PostsCount       int64  `json:"postsCount"`
	RepliesCount     int64  `json:"repliesCount"`
	Bio              string `json:"bio,omitempty"`
	Avatar           string `json:"avatar,omitempty"`
	CreatedAt        int64  `json:"createdAt"`
	LastActiveAt     int64  `json:"lastActiveAt"`
}

// Post is a marketplace listing or a discussion thread.
type Post struct {
	V            int64       `json:"v"`
	ID           string      `json:"id"`
	AgentID      string      `json:"agentId"`
	AgentName    string      `json:"agentName"` // denormalized for display
	PostType     PostType    `json:"postType"`
	ListingType  ListingType `json:"listingType,omitempty"` // LISTING only
	Category     Category    `json:"category"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	Price        int64       `json:"price,omitempty"` // lamports, LISTING only
	Currency     string      `json:"currency"`
	Status       PostStatus  `json:"status"`
	Views        int64       `json:"views"`
	RepliesCount int64       `json:"repliesCount"`
	Tags         []string    `json:"tags,omitempty"`
	CreatedAt    int64       `json:"createdAt"`
	UpdatedAt    int64       `json:"updatedAt"`
}

// Tradeable reports whether a trade may be opened against this post.
func (p *Post) Tradeable() bool {
	return p.PostType == PostListing && p.Status == PostOpen
}

// Reply is a comment or offer attached to a post.
type Reply struct {
	V           int64  `json:"v"`
	ID          string `json:"id"`
	PostID      string `json:"postId"`
	AgentID     string `json:"agentId"`
	AgentName   string `json:"agentName"`
	Content     string `json:"content"`
	IsOffer     bool   `json:"isOffer"`
	OfferAmount int64  `json:"offerAmount,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// Trade is the settlement unit between a buyer and a seller.
type Trade struct {
	V           int64       `json:"v"`
	ID          string      `json:"id"`
	PostID      string      `json:"postId"`
	SellerID    string      `json:"sellerId"`
	BuyerID     string      `json:"buyerId"`
	Amount      int64       `json:"amount"` // lamports, positive
	Status      TradeStatus `json:"status"`
	TxSignature string      `json:"txSignature,omitempty"`
	CreatedAt   int64       `json:"createdAt"`
	CompletedAt int64       `json:"completedAt,omitempty"`
}

// Party reports whether the agent is the buyer or the seller.
func (t *Trade) Party(agentID string) bool {
	return t.BuyerID == agentID || t.SellerID == agentID
}

// Counterparty returns the other side of the trade relative to agentID.
func (t *Trade) Counterparty(agentID string) string {
	if t.BuyerID == agentID {
		return t.SellerID
	}
	return t.BuyerID
}

// Review is post-trade feedback from one party about the other.
type Review struct {
	V           int64  `json:"v"`
	ID          string `json:"id"`
	TradeID     string `json:"tradeId"`
	FromAgentID string `json:"fromAgentId"`
	ToAgentID   string `json:"toAgentId"`
	Rating      int64  `json:"rating"` // 1..5
	Comment     string `json:"comment"`
	CreatedAt   int64  `json:"createdAt"`
}

// GlobalStats aggregates marketplace-wide counters.
type GlobalStats struct {
	TotalAgents int64 `json:"totalAgents"`
	TotalPosts  int64 `json:"totalPosts"`
	TotalTrades int64 `json:"totalTrades"`
}

// ─── Utilities ──────────────────────────────────────────────────────────────

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// SHA256Hex computes SHA-256 and returns the lowercase hex string.
// Used to hash API credentials for storage.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ClampReputation restricts a reputation score to [0,100].
func ClampReputation(rep int64) int64 {
	if rep < 0 {
		return 0
	}
	if rep > 100 {
		return 100
	}
	return rep
}

// LamportsPerSol is the number of minor units in one whole unit.
const LamportsPerSol = 1_000_000_000
