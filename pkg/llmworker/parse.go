package llmworker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseExtraction validates that an LLM's raw response content is JSON and
// returns it as a json.RawMessage ready to persist. A schema-constrained
// response is already guaranteed JSON by the provider; a free-form
// response gets this as its "follow-up parse attempt".
func parseExtraction(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("llm response is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}
