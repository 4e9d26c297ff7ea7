// Package tokencount estimates token usage for completion calls so the
// worker can report consumption per model without trusting provider usage
// blocks, which several OpenRouter backends omit on streamed responses.
package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Usage is the token accounting for one chat completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Counter caches tiktoken encodings per model family. Safe for concurrent use.
type Counter struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	family := modelFamily(model)

	c.mu.RLock()
	enc, ok := c.cache[family]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[family]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(family)
	if err != nil {
		// cl100k_base is a fair approximation for every model family we route to.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.cache[family] = enc
	return enc, nil
}

// modelFamily strips OpenRouter provider prefixes and maps the model onto a
// tiktoken-known name. Non-OpenAI families approximate with gpt-4 encoding.
func modelFamily(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")

	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// Count returns the token count of text under the model's encoding.
func (c *Counter) Count(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Usage computes prompt and completion token counts for a two-message chat
// call. Prompt counting includes the per-message framing overhead used by
// OpenAI-compatible APIs (3 tokens per message, 1 per role, 3 to prime the
// reply).
func (c *Counter) Usage(systemPrompt, userPrompt, completion, model string) (Usage, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return Usage{}, err
	}

	prompt := 3 // reply priming
	for _, msg := range []struct{ role, text string }{
		{"system", systemPrompt},
		{"user", userPrompt},
	} {
		prompt += 3 + 1
		prompt += len(enc.Encode(msg.role, nil, nil))
		prompt += len(enc.Encode(msg.text, nil, nil))
	}
	comp := len(enc.Encode(completion, nil, nil))

	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: comp,
		TotalTokens:      prompt + comp,
	}, nil
}
