// Package wallet mints ed25519 keypairs for agent wallets. Addresses and
// private keys are base58-encoded; the private key leaves the process exactly
// once, in the registration response.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/mr-tron/base58"

	"github.com/agentbazaar/bazaar/internal/domain"
)

// Generator implements domain.WalletGenerator.
type Generator struct{}

// New returns a keypair generator.
func New() *Generator { return &Generator{} }

// Generate mints a fresh keypair. The address is the base58 public key; the
// private key is the base58 64-byte expanded seed, Solana wallet convention.
func (g *Generator) Generate() (address, privateKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return base58.Encode(pub), base58.Encode(priv), nil
}

// ValidAddress reports whether the string decodes as a plausible wallet
// address: base58, 32–44 characters, 32 bytes decoded.
func ValidAddress(address string) bool {
	if len(address) < 32 || len(address) > 44 {
		return false
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return false
	}
	return len(raw) == ed25519.PublicKeySize
}

var _ domain.WalletGenerator = (*Generator)(nil)
