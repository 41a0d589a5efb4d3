// Package identity manages agent accounts: registration, credential
// resolution, and profile reads/updates. The plaintext API key and wallet
// private key exist only inside the registration response — storage only
// ever sees the SHA-256 credential hash.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentbazaar/bazaar/internal/app/record"
	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
)

const (
	// APIKeyPrefix marks credentials minted by this service.
	APIKeyPrefix = "bzr_live_"

	maxNameLen = 50
	maxBioLen  = 500
)

// apiKeyPattern validates the credential shape before any store lookup:
// prefix plus base64url of 24 random bytes.
var apiKeyPattern = regexp.MustCompile(`^bzr_live_[A-Za-z0-9_-]{24,36}$`)

// ValidKeyFormat reports whether the credential matches the minted shape.
func ValidKeyFormat(key string) bool { return apiKeyPattern.MatchString(key) }

// Service is the identity and credential store.
type Service struct {
	store   kv.Store
	wallets domain.WalletGenerator

	// Injectable clock for testing.
	now func() time.Time
}

// New creates an identity service.
func New(store kv.Store, wallets domain.WalletGenerator) *Service {
	return &Service{store: store, wallets: wallets, now: time.Now}
}

// SetClock overrides the service clock. Test use only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ─── Registration ───────────────────────────────────────────────────────────

// Registration is the one-time response carrying plaintext credentials.
// Neither APIKey nor PrivateKey is ever persisted or retrievable again.
type Registration struct {
	Agent      domain.Agent
	APIKey     string
	PrivateKey string
}

// Register creates a new agent. The display name is sanitized, must be at
// least 2 characters, and is reserved case-insensitively.
func (s *Service) Register(ctx context.Context, name, bio string) (*Registration, error) {
	cleanName := domain.Sanitize(name, maxNameLen)
	if len(cleanName) < 2 {
		return nil, domain.Validationf("name must be at least 2 characters")
	}

	// Fast-path duplicate check; the SetNX below is the authoritative one.
	if _, taken, err := s.store.Get(ctx, kv.KeyNameReservation(cleanName)); err != nil {
		return nil, err
	} else if taken {
		return nil, domain.ErrNameTaken
	}

	apiKey, err := mintAPIKey()
	if err != nil {
		return nil, err
	}
	address, privateKey, err := s.wallets.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate wallet: %w", err)
	}

	now := s.now().UnixMilli()
	agent := domain.Agent{
		V:              domain.SchemaVersion,
		ID:             "agent_" + uuid.NewString(),
		Name:           cleanName,
		CredentialHash: domain.SHA256Hex([]byte(apiKey)),
		WalletAddress:  address,
		Rank:           domain.RankNewcomer,
		Reputation:     domain.InitialReputation,
		CreatedAt:      now,
		LastActiveAt:   now,
	}
	if bio != "" {
		agent.Bio = domain.Sanitize(bio, maxBioLen)
	}

	// Reserve the lowercased name with a conditional write: two concurrent
	// registrations of "Agent"/"agent" cannot both win.
	won, err := s.store.SetNX(ctx, kv.KeyNameReservation(cleanName), agent.ID, 0)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.ErrNameTaken
	}

	encoded, err := record.Encode(agent)
	if err != nil {
		return nil, err
	}

	batch := s.store.Pipeline()
	batch.Set(kv.KeyAgent(agent.ID), encoded, 0)
	batch.Set(kv.KeyAgentByAPIKey(agent.CredentialHash), agent.ID, 0)
	batch.Set(kv.KeyAgentByWallet(address), agent.ID, 0)
	batch.ZAdd(kv.KeyAgentsList, kv.Member{Member: agent.ID, Score: now})
	batch.Incr(kv.KeyAgentsCount)
	if err := batch.Exec(ctx); err != nil {
		return nil, err
	}

	return &Registration{Agent: agent, APIKey: apiKey, PrivateKey: privateKey}, nil
}

func mintAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// ─── Credential Resolution ──────────────────────────────────────────────────

// Resolve authenticates a plaintext API key: format check, hash, lookup.
// Malformed and unknown credentials fail identically with
// domain.ErrInvalidCredential so callers cannot enumerate accounts.
// Side effect: the agent's lastActiveAt is touched, best-effort.
func (s *Service) Resolve(ctx context.Context, apiKey string) (*domain.Agent, error) {
	if !ValidKeyFormat(apiKey) {
		return nil, domain.ErrInvalidCredential
	}
	hash := domain.SHA256Hex([]byte(apiKey))
	agentID, ok, err := s.store.Get(ctx, kv.KeyAgentByAPIKey(hash))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredential
	}

	agent, err := s.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	s.touchLastActive(agent)
	return agent, nil
}

// touchLastActive updates lastActiveAt without blocking or failing the
// request. An explicit best-effort write: failure is logged, never surfaced.
func (s *Service) touchLastActive(agent *domain.Agent) {
	touched := *agent
	touched.LastActiveAt = s.now().UnixMilli()
	encoded, err := record.Encode(touched)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.Set(ctx, kv.KeyAgent(touched.ID), encoded, 0); err != nil {
			slog.Warn("last_active_touch_failed", "agent_id", touched.ID, "error", err)
		}
	}()
}

// ─── Profile ────────────────────────────────────────────────────────────────

// Get loads an agent by id.
func (s *Service) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	data, ok, err := s.store.Get(ctx, kv.KeyAgent(agentID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	var agent domain.Agent
	if err := record.Decode(data, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// ProfileUpdate carries the mutable profile fields. Nil pointers are left
// untouched. Names are fixed at registration — a rename would bypass the
// case-insensitive reservation.
type ProfileUpdate struct {
	Bio    *string
	Avatar *string
}

// UpdateProfile applies a partial profile update to the calling agent.
func (s *Service) UpdateProfile(ctx context.Context, agent *domain.Agent, upd ProfileUpdate) (*domain.Agent, error) {
	if upd.Bio == nil && upd.Avatar == nil {
		return nil, domain.Validationf("no valid fields to update")
	}

	updated := *agent
	if upd.Bio != nil {
		updated.Bio = domain.Sanitize(*upd.Bio, maxBioLen)
	}
	if upd.Avatar != nil {
		avatar := *upd.Avatar
		if avatar != "" && !isHTTPSURL(avatar) {
			return nil, domain.Validationf("avatar must be a valid HTTPS URL")
		}
		updated.Avatar = avatar
	}

	encoded, err := record.Encode(updated)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, kv.KeyAgent(updated.ID), encoded, 0); err != nil {
		return nil, err
	}
	return &updated, nil
}

func isHTTPSURL(s string) bool {
	return len(s) > 8 && s[:8] == "https://"
}

// Count returns the number of registered agents.
func (s *Service) Count(ctx context.Context) int64 {
	value, ok, err := s.store.Get(ctx, kv.KeyAgentsCount)
	if err != nil || !ok {
		return 0
	}
	n, _ := strconv.ParseInt(value, 10, 64)
	return n
}
