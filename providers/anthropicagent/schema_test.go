package anthropicagent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertSchema_EmptyRawProducesBareObject(t *testing.T) {
	out := convertSchema(nil)
	assert.Equal(t, "object", out["type"])
	assert.Equal(t, map[string]any{}, out["properties"])
}

func TestConvertSchema_NestedObjectWithEnumAndRequired(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"description": "search params",
		"required": ["query"],
		"properties": {
			"query": {"type": "string", "description": "search text"},
			"sort": {"type": "string", "enum": ["asc", "desc"]},
			"tags": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	out := convertSchema(raw)
	assert.Equal(t, "object", out["type"])
	assert.Equal(t, "search params", out["description"])
	assert.Equal(t, []string{"query"}, out["required"])

	props, ok := out["properties"].(map[string]any)
	require.True(t, ok)

	query, ok := props["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "search text", query["description"])

	sort, ok := props["sort"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"asc", "desc"}, sort["enum"])

	tags, ok := props["tags"].(map[string]any)
	require.True(t, ok)
	items, ok := tags["items"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", items["type"])
}
