// Package chain wraps the blockchain JSON-RPC provider. The node is consumed
// as an oracle: it answers balance queries and "does a transfer of ≥X from A
// to B with this signature exist and succeed" — nothing else.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentbazaar/bazaar/internal/domain"
)

// DefaultTimeout bounds every RPC round trip. The oracle must surface failure
// rather than hang a settlement request.
const DefaultTimeout = 10 * time.Second

// Oracle implements domain.ChainOracle against a Solana-style RPC endpoint.
type Oracle struct {
	url    string
	client *http.Client
}

// New creates an oracle for the given RPC URL.
func New(rpcURL string, timeout time.Duration) *Oracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Oracle{
		url:    rpcURL,
		client: &http.Client{Timeout: timeout},
	}
}

// ─── RPC Wire Types ─────────────────────────────────────────────────────────

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type balanceResponse struct {
	Result struct {
		Value int64 `json:"value"`
	} `json:"result"`
}

type transactionResponse struct {
	Result *struct {
		Meta struct {
			Err json.RawMessage `json:"err"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				Instructions []instruction `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	} `json:"result"`
}

type instruction struct {
	Program string `json:"program"`
	Parsed  *struct {
		Type string `json:"type"`
		Info struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
			Lamports    int64  `json:"lamports"`
		} `json:"info"`
	} `json:"parsed"`
}

func (o *Oracle) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ─── Oracle Contract ────────────────────────────────────────────────────────

// Balance returns the wallet balance in lamports. Any failure returns 0 —
// balance lookups decorate profiles and must never fail the request.
func (o *Oracle) Balance(ctx context.Context, address string) int64 {
	var resp balanceResponse
	if err := o.call(ctx, "getBalance", []any{address}, &resp); err != nil {
		slog.Warn("balance_lookup_failed", "address", address, "error", err)
		return 0
	}
	return resp.Result.Value
}

// VerifyTransfer confirms the referenced transaction exists, succeeded
// on-chain, and contains a system transfer of at least minAmount lamports
// from `from` to `to`. Failures are *domain.VerificationError so the caller
// can leave the trade untouched and allow a retry.
func (o *Oracle) VerifyTransfer(ctx context.Context, signature, from, to string, minAmount int64) error {
	var resp transactionResponse
	params := []any{signature, map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := o.call(ctx, "getTransaction", params, &resp); err != nil {
		slog.Warn("verify_transfer_rpc_failed", "signature", signature, "error", err)
		return &domain.VerificationError{Reason: "verification unavailable"}
	}

	tx := resp.Result
	if tx == nil {
		return &domain.VerificationError{Reason: "transaction not found"}
	}
	if len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null" {
		return &domain.VerificationError{Reason: "transaction failed"}
	}

	for _, ix := range tx.Transaction.Message.Instructions {
		if ix.Program != "system" || ix.Parsed == nil || ix.Parsed.Type != "transfer" {
			continue
		}
		info := ix.Parsed.Info
		if info.Source == from && info.Destination == to && info.Lamports >= minAmount {
			return nil
		}
	}
	return &domain.VerificationError{Reason: "transaction details do not match"}
}

var _ domain.ChainOracle = (*Oracle)(nil)
