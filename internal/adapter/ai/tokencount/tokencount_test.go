package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	t.Parallel()

	counter := NewCounter()

	n, err := counter.Count("Hello, world!", "openai/gpt-4o")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.Less(t, n, 10)

	empty, err := counter.Count("", "openai/gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 0, empty)
}

func TestModelFamily(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gpt-4", modelFamily("openai/gpt-4o"))
	assert.Equal(t, "gpt-3.5-turbo", modelFamily("openai/gpt-3.5-turbo"))
	assert.Equal(t, "gpt-4", modelFamily("google/gemini-2.0-flash-001"))
	assert.Equal(t, "gpt-4", modelFamily("meta-llama/llama-3.1-8b-instruct:free"))
}

func TestUsage(t *testing.T) {
	t.Parallel()

	counter := NewCounter()

	u, err := counter.Usage("You are a careful assessor.", "Summarize the evidence.", "The candidate shows strength in planning.", "openai/gpt-4o")
	require.NoError(t, err)
	assert.Greater(t, u.PromptTokens, 11, "prompt tokens exceed the per-message framing overhead alone")
	assert.Greater(t, u.CompletionTokens, 0)
	assert.Equal(t, u.PromptTokens+u.CompletionTokens, u.TotalTokens)
}

func TestCounterConcurrentAccess(t *testing.T) {
	t.Parallel()

	counter := NewCounter()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = counter.Count("concurrent use of the shared cache", "openai/gpt-4o")
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
