package providers

import (
	"encoding/json"
	"io"
)

// ReadErrorMessage extracts a human-readable message from an upstream error
// body, following the donor's readClaudeErrMsg/readGeminiErrMsg pattern:
// try a couple of common shapes, fall back to the raw body.
func ReadErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return "failed to read error body"
	}
	if len(raw) == 0 {
		return "empty error body"
	}

	var generic struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &generic); err == nil {
		if generic.Error.Message != "" {
			return generic.Error.Message
		}
		if generic.Message != "" {
			return generic.Message
		}
	}
	return string(raw)
}
