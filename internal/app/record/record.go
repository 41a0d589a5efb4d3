// Package record (de)serializes stored records with schema versioning.
// Stored shapes are never trusted blindly: every record carries a version,
// checked before the full decode.
package record

import (
	"encoding/json"
	"fmt"

	"github.com/agentbazaar/bazaar/internal/domain"
)

// Encode marshals a record for storage.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(data), nil
}

// Decode unmarshals a stored record after validating its schema version.
func Decode(data string, v any) error {
	var hdr struct {
		V int64 `json:"v"`
	}
	if err := json.Unmarshal([]byte(data), &hdr); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if hdr.V != domain.SchemaVersion {
		return fmt.Errorf("decode record: unsupported schema version %d", hdr.V)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
