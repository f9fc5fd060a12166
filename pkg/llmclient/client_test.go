package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnsupportedProviderReturnsTypedError(t *testing.T) {
	_, err := New(Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
	var upErr *UnsupportedProviderError
	assert.ErrorAs(t, err, &upErr)
}

func TestNew_AnthropicAndOpenAIAreConstructible(t *testing.T) {
	c, err := New(Config{Provider: "anthropic", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Implements(t, (*Completer)(nil), c)

	c, err = New(Config{Provider: "openai", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Implements(t, (*Completer)(nil), c)
}
