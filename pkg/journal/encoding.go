package journal

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Database Key Namespace Design
// ============================================================================
//
// BadgerDB is a key-value store, so prefixed keys organize the two record
// types into logical namespaces:
//
// Data Type     Prefix  Key Format             Value Type
// =========================================================================
// Run summary   "r:"    r:<runID>              Run (JSON)
// Run results   "i:"    i:<runID>:<seq>        RunResult (JSON)
//
// The sequence number is zero-padded to six digits so a prefix scan over
// "i:<runID>:" yields results in processing order.

const (
	prefixRun    = "r:"
	prefixResult = "i:"
)

// keyRun generates a key for a run summary: "r:<runID>"
func keyRun(runID string) []byte {
	return []byte(prefixRun + runID)
}

// keyResult generates a key for one identity outcome: "i:<runID>:<seq>"
func keyResult(runID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", prefixResult, runID, seq))
}

// keyResultPrefix generates the scan prefix for a run's outcomes.
func keyResultPrefix(runID string) []byte {
	return []byte(prefixResult + runID + ":")
}

// ============================================================================
// JSON Encoding/Decoding
// ============================================================================

func encodeRun(run *Run) ([]byte, error) {
	bytes, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run: %w", err)
	}
	return bytes, nil
}

func decodeRun(bytes []byte) (*Run, error) {
	var run Run
	if err := json.Unmarshal(bytes, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}

func encodeResult(result *RunResult) ([]byte, error) {
	bytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run result: %w", err)
	}
	return bytes, nil
}

func decodeResult(bytes []byte) (*RunResult, error) {
	var result RunResult
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, fmt.Errorf("failed to decode run result: %w", err)
	}
	return &result, nil
}
