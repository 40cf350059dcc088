package anthropicagent

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithEnvIsolation_SetsTokenAndUnsetsAPIKey(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-leftover")
	t.Cleanup(func() { os.Unsetenv("ANTHROPIC_API_KEY") })

	var sawToken, sawKeyPresent string
	var sawKeyOK bool
	err := withEnvIsolation("caller-token", func() error {
		sawToken = os.Getenv("CLAUDE_CODE_OAUTH_TOKEN")
		sawKeyPresent, sawKeyOK = os.LookupEnv("ANTHROPIC_API_KEY")
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "caller-token", sawToken)
	assert.False(t, sawKeyOK)
	assert.Empty(t, sawKeyPresent)
}

func TestWithEnvIsolation_RestoresPriorValuesAfterward(t *testing.T) {
	os.Setenv("CLAUDE_CODE_OAUTH_TOKEN", "prior-token")
	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-prior")
	t.Cleanup(func() {
		os.Unsetenv("CLAUDE_CODE_OAUTH_TOKEN")
		os.Unsetenv("ANTHROPIC_API_KEY")
	})

	_ = withEnvIsolation("caller-token", func() error { return nil })

	assert.Equal(t, "prior-token", os.Getenv("CLAUDE_CODE_OAUTH_TOKEN"))
	assert.Equal(t, "sk-ant-prior", os.Getenv("ANTHROPIC_API_KEY"))
}

func TestWithEnvIsolation_RemovesTokenWhenNonePreexistedAndPropagatesError(t *testing.T) {
	os.Unsetenv("CLAUDE_CODE_OAUTH_TOKEN")
	os.Unsetenv("ANTHROPIC_API_KEY")

	sentinel := errors.New("boom")
	err := withEnvIsolation("caller-token", func() error { return sentinel })

	assert.ErrorIs(t, err, sentinel)
	_, ok := os.LookupEnv("CLAUDE_CODE_OAUTH_TOKEN")
	assert.False(t, ok)
	_, ok = os.LookupEnv("ANTHROPIC_API_KEY")
	assert.False(t, ok)
}
