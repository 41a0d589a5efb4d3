package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ChainOracle is the external blockchain RPC collaborator. It answers two
// questions: what does a wallet hold, and does a transfer matching
// (from, to, amount ≥ min) exist inside a successful transaction.
type ChainOracle interface {
	// Balance returns the wallet's balance in lamports.
	// On any failure it returns 0 — balance lookups are best-effort and must
	// never fail the surrounding request.
	Balance(ctx context.Context, address string) int64

	// VerifyTransfer confirms the referenced transaction succeeded on-chain
	// and contains a transfer of at least minAmount lamports from `from` to
	// `to`. A *VerificationError is returned when the check fails; any other
	// error means the oracle itself was unreachable.
	VerifyTransfer(ctx context.Context, signature, from, to string, minAmount int64) error
}

// WalletGenerator mints a fresh keypair for a registering agent.
// The private key is surfaced exactly once and never persisted.
type WalletGenerator interface {
	Generate() (address, privateKey string, err error)
}
