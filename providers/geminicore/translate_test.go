package geminicore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullroute-dev/llmgateway/canonical"
)

func floatPtr(f float64) *float64 { return &f }

func TestToGenerationConfig_PenaltyRenames(t *testing.T) {
	req := &canonical.Request{
		FrequencyPenalty: floatPtr(0.5),
		PresencePenalty:  floatPtr(-0.2),
	}

	cfg := ToGenerationConfig(req)
	require.NotNil(t, cfg)
	assert.Equal(t, 0.5, *cfg.FrequencyPenalty)
	assert.Equal(t, -0.2, *cfg.PresencePenalty)
}

func TestToGenerationConfig_NilWhenEmpty(t *testing.T) {
	assert.Nil(t, ToGenerationConfig(&canonical.Request{}))
}

func TestToContents_DataURLImageBecomesInlineData(t *testing.T) {
	msgs := []canonical.Message{
		{
			Role: canonical.RoleUser,
			Content: canonical.MessageContent{
				Parts: []canonical.ContentPart{
					{Type: "image_url", ImageURL: &canonical.ImageURL{URL: "data:image/png;base64,Zm9v"}},
				},
			},
		},
	}

	_, contents := ToContents(msgs)
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 1)
	require.NotNil(t, contents[0].Parts[0].InlineData)
	assert.Equal(t, "image/png", contents[0].Parts[0].InlineData.MimeType)
	assert.Equal(t, "Zm9v", contents[0].Parts[0].InlineData.Data)
	assert.Nil(t, contents[0].Parts[0].FileData)
}

func TestToContents_HTTPImageURLBecomesFileData(t *testing.T) {
	msgs := []canonical.Message{
		{
			Role: canonical.RoleUser,
			Content: canonical.MessageContent{
				Parts: []canonical.ContentPart{
					{Type: "image_url", ImageURL: &canonical.ImageURL{URL: "https://example.com/cat.png"}},
				},
			},
		},
	}

	_, contents := ToContents(msgs)
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 1)
	require.NotNil(t, contents[0].Parts[0].FileData)
	assert.Equal(t, "https://example.com/cat.png", contents[0].Parts[0].FileData.FileURI)
	assert.Nil(t, contents[0].Parts[0].InlineData)
}

func TestToGenerationConfig_StopSequencesAndMaxTokens(t *testing.T) {
	maxTokens := 128
	req := &canonical.Request{
		Stop:      []string{"STOP"},
		MaxTokens: &maxTokens,
	}

	cfg := ToGenerationConfig(req)
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"STOP"}, cfg.StopSequences)
	assert.Equal(t, 128, cfg.MaxOutputTokens)
}
