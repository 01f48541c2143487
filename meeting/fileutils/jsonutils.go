package fileutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a model response contains nothing that looks like a JSON object.
var ErrNoJSON = errors.New("no JSON object found in model output")

// DecodeModelJSON unmarshals JSON from a model response, with a small amount of robustness
// for cases where the model wraps the JSON in extra text, code fences, or emits slightly
// malformed JSON (trailing commas, single quotes, unterminated arrays).
func DecodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(stripCodeFence(outputText))
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	// Fast path: valid JSON as-is.
	if json.Valid([]byte(s)) {
		return json.Unmarshal([]byte(s), v)
	}

	// Attempt to extract the first top-level JSON object.
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return fmt.Errorf("%w (len=%d)", ErrNoJSON, len(s))
	}
	sub := s[start:]
	if end := strings.LastIndexByte(sub, '}'); end != -1 && json.Valid([]byte(sub[:end+1])) {
		return json.Unmarshal([]byte(sub[:end+1]), v)
	}

	// Lenient recovery: bracket/quote repair of everything from the first brace onwards,
	// which also closes objects truncated mid-stream.
	repaired, err := jsonrepair.JSONRepair(sub)
	if err != nil {
		return fmt.Errorf("repair model JSON (len=%d): %w", len(sub), err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("failed to unmarshal repaired JSON (len=%d): %w", len(repaired), err)
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		// Drop the language tag line (```json).
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

// ReadJSONFile reads and unmarshals a JSON file into v.
func ReadJSONFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
