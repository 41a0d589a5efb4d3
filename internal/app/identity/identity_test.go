package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
	"github.com/agentbazaar/bazaar/internal/infra/wallet"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s := New(kv.NewMemory(), wallet.New())
	s.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
	return s
}

func TestRegister(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, "TraderBot", "I trade things")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !strings.HasPrefix(reg.APIKey, APIKeyPrefix) {
		t.Errorf("APIKey = %q, want %s prefix", reg.APIKey, APIKeyPrefix)
	}
	if !ValidKeyFormat(reg.APIKey) {
		t.Errorf("minted key %q fails its own format check", reg.APIKey)
	}
	if reg.PrivateKey == "" {
		t.Error("private key missing from registration")
	}
	if !wallet.ValidAddress(reg.Agent.WalletAddress) {
		t.Errorf("wallet address %q is not valid", reg.Agent.WalletAddress)
	}

	agent := reg.Agent
	if agent.Name != "TraderBot" {
		t.Errorf("Name = %q", agent.Name)
	}
	if agent.Rank != domain.RankNewcomer {
		t.Errorf("Rank = %s, want NEWCOMER", agent.Rank)
	}
	if agent.Reputation != domain.InitialReputation {
		t.Errorf("Reputation = %d, want %d", agent.Reputation, domain.InitialReputation)
	}
	if agent.CredentialHash == "" || strings.Contains(agent.CredentialHash, reg.APIKey) {
		t.Error("credential hash missing or leaks the key")
	}

	// The stored record must round-trip through Get.
	loaded, err := s.Get(ctx, agent.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Name != agent.Name || loaded.CredentialHash != agent.CredentialHash {
		t.Error("stored agent does not match registration")
	}
}

func TestRegisterNameValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "x", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("one-char name error = %v, want validation", err)
	}
	if _, err := s.Register(ctx, "  <> ", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("all-stripped name error = %v, want validation", err)
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "TraderBot", ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := s.Register(ctx, "TraderBot", ""); !errors.Is(err, domain.ErrNameTaken) {
		t.Errorf("exact duplicate error = %v, want ErrNameTaken", err)
	}
	// The reservation is case-insensitive.
	if _, err := s.Register(ctx, "tradERBot", ""); !errors.Is(err, domain.ErrNameTaken) {
		t.Errorf("case-variant duplicate error = %v, want ErrNameTaken", err)
	}
}

func TestResolve(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, "TraderBot", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	agent, err := s.Resolve(ctx, reg.APIKey)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if agent.ID != reg.Agent.ID {
		t.Errorf("resolved %s, want %s", agent.ID, reg.Agent.ID)
	}
}

func TestResolveRejectsBadKeys(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, "TraderBot", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Malformed and unknown keys must fail identically, so a caller cannot
	// enumerate which keys exist.
	for _, key := range []string{
		"",
		"not-a-key",
		"bzr_live_short",
		APIKeyPrefix + strings.Repeat("A", 32), // well-formed but never minted
	} {
		_, err := s.Resolve(ctx, key)
		if !errors.Is(err, domain.ErrInvalidCredential) {
			t.Errorf("Resolve(%q) error = %v, want ErrInvalidCredential", key, err)
		}
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, "TraderBot", "old bio")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	agent := &reg.Agent

	bio := "new bio"
	avatar := "https://example.com/a.png"
	updated, err := s.UpdateProfile(ctx, agent, ProfileUpdate{Bio: &bio, Avatar: &avatar})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Bio != "new bio" || updated.Avatar != avatar {
		t.Errorf("update not applied: bio=%q avatar=%q", updated.Bio, updated.Avatar)
	}

	bad := "http://insecure.example/a.png"
	if _, err := s.UpdateProfile(ctx, agent, ProfileUpdate{Avatar: &bad}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("plain-http avatar error = %v, want validation", err)
	}

	if _, err := s.UpdateProfile(ctx, agent, ProfileUpdate{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty update error = %v, want validation", err)
	}
}

func TestCount(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if got := s.Count(ctx); got != 0 {
		t.Fatalf("Count before registrations = %d, want 0", got)
	}
	s.Register(ctx, "AgentOne", "")
	s.Register(ctx, "AgentTwo", "")
	if got := s.Count(ctx); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}
