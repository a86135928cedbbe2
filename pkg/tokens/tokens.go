// Package tokens provides token counting for chat requests and function
// schemas.
//
// Two counting modes are exposed: an exact byte-pair-encoding pass backed by
// tiktoken, and a cheap word-count heuristic (roughly 0.75 words per token)
// for short prompts where a full encode is not worth the cost. Schema and
// system-message costs are always counted exactly; prompt estimation switches
// between the two modes based on word count.
//
// A Counter is safe for concurrent use.
package tokens

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is specified. It matches
// the GPT-4 family of chat and embedding models.
const DefaultEncoding = "cl100k_base"

// wordsPerToken is the heuristic ratio between whitespace-separated words and
// model tokens for English prose.
const wordsPerToken = 0.75

// heuristicWordLimit is the word count below which EstimatePrompt uses the
// word-count heuristic instead of an exact encode.
const heuristicWordLimit = 500

// Encoder is the subset of the tiktoken API the Counter needs. It is satisfied
// by [tiktoken.Tiktoken] and can be replaced in tests or by callers that bring
// their own tokenizer.
type Encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

var _ Encoder = (*tiktoken.Tiktoken)(nil)

// Counter counts tokens using a fixed BPE encoding.
type Counter struct {
	enc Encoder
}

// NewCounter returns a Counter backed by the DefaultEncoding BPE tables.
func NewCounter() (*Counter, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokens: load encoding %q: %w", DefaultEncoding, err)
	}
	return &Counter{enc: enc}, nil
}

// NewCounterForModel returns a Counter using the encoding registered for the
// given model name (e.g. "gpt-4-1106-preview").
func NewCounterForModel(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("tokens: load encoding for model %q: %w", model, err)
	}
	return &Counter{enc: enc}, nil
}

// NewCounterWithEncoder returns a Counter that delegates exact counting to
// enc. Intended for tests and for callers with a custom tokenizer.
func NewCounterWithEncoder(enc Encoder) *Counter {
	return &Counter{enc: enc}
}

// Count returns the exact token count of text under the Counter's encoding.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimatePrompt returns the token count to budget for a user prompt. Prompts
// under heuristicWordLimit words use WordEstimate; longer prompts are encoded
// exactly. The heuristic may under- or overshoot slightly, which is acceptable
// because the request ceiling already includes headroom.
func (c *Counter) EstimatePrompt(text string) int {
	words := len(strings.Fields(text))
	if words < heuristicWordLimit {
		return WordEstimate(words)
	}
	return c.Count(text)
}

// WordEstimate converts a whitespace-separated word count into an approximate
// token count using the wordsPerToken ratio, rounded to the nearest integer.
func WordEstimate(words int) int {
	if words <= 0 {
		return 0
	}
	return int(math.Round(float64(words) / wordsPerToken))
}
