package broker

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EncodePayload JSON-encodes a message for publishing. json.RawMessage is
// sent verbatim.
func EncodePayload(message interface{}) ([]byte, error) {
	if raw, ok := message.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("raw message is not valid json")
		}
		return raw, nil
	}

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// decodePayload parses a payload on a best-effort basis
func decodePayload(raw []byte) (interface{}, bool) {
	if len(raw) == 0 {
		return nil, true
	}

	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// TraceParent builds a W3C trace-context header value
// ("00-<32 hex trace id>-<16 hex parent id>-01"). Missing or malformed ids
// are replaced with random ones.
func TraceParent(traceID, parentID string) string {
	if !isHex(traceID, 32) {
		id := uuid.New()
		traceID = hex.EncodeToString(id[:])
	}
	if !isHex(parentID, 16) {
		id := uuid.New()
		parentID = hex.EncodeToString(id[:8])
	}
	return fmt.Sprintf("00-%s-%s-01", strings.ToLower(traceID), strings.ToLower(parentID))
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
