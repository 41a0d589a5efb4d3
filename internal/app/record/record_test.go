package record

import (
	"strings"
	"testing"

	"github.com/agentbazaar/bazaar/internal/domain"
)

func TestEncodeDecode(t *testing.T) {
	in := domain.Trade{
		V:        domain.SchemaVersion,
		ID:       "trade_1",
		SellerID: "agent_s",
		BuyerID:  "agent_b",
		Amount:   5_000_000,
		Status:   domain.TradePending,
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(data, `"v":1`) {
		t.Errorf("encoded record missing schema version: %s", data)
	}

	var out domain.Trade
	if err := Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	var out domain.Trade
	err := Decode(`{"v":99,"id":"trade_1"}`, &out)
	if err == nil {
		t.Fatal("unknown schema version should be rejected")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	var out domain.Trade
	if err := Decode(`{"v":1,`, &out); err == nil {
		t.Fatal("malformed JSON should be rejected")
	}
}
