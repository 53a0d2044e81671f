package parse

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// Object decodes content as a JSON object, strictly first and via repair when
// strict decoding fails. Content that decodes to anything other than an
// object is an error even after repair.
func Object(content string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return out, nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("content is not repairable JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, fmt.Errorf("repaired content is not a JSON object: %w", err)
	}
	return out, nil
}

// As decodes content into T, strictly first and via repair when strict
// decoding fails. Model output frequently arrives with single quotes, bare
// keys, or trailing commas; repair handles those without loosening the final
// unmarshal.
func As[T any](content string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return out, nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return out, fmt.Errorf("content is not repairable JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return out, fmt.Errorf("repaired content does not decode as %T: %w", out, err)
	}
	return out, nil
}
