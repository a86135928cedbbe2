package tokens_test

import (
	"strings"
	"testing"

	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// stubEncoder is a deterministic Encoder that emits one token per
// whitespace-separated word and records whether it was called.
type stubEncoder struct {
	calls int
}

func (s *stubEncoder) Encode(text string, _, _ []string) []int {
	s.calls++
	words := strings.Fields(text)
	out := make([]int, len(words))
	for i := range words {
		out[i] = i
	}
	return out
}

// TestWordEstimate verifies the words/0.75 rounding against hand-computed
// values.
func TestWordEstimate(t *testing.T) {
	cases := []struct {
		words int
		want  int
	}{
		{0, 0},
		{-3, 0},
		{1, 1},  // 1.33 rounds down
		{2, 3},  // 2.66 rounds up
		{3, 4},  // exactly 4
		{75, 100},
		{499, 665},
	}
	for _, tc := range cases {
		if got := tokens.WordEstimate(tc.words); got != tc.want {
			t.Errorf("WordEstimate(%d) = %d, want %d", tc.words, got, tc.want)
		}
	}
}

// TestCount_Empty verifies that empty input counts as zero tokens without
// touching the encoder.
func TestCount_Empty(t *testing.T) {
	enc := &stubEncoder{}
	c := tokens.NewCounterWithEncoder(enc)
	if got := c.Count(""); got != 0 {
		t.Fatalf("Count(\"\") = %d, want 0", got)
	}
	if enc.calls != 0 {
		t.Errorf("encoder called %d times for empty input, want 0", enc.calls)
	}
}

// TestCount_DelegatesToEncoder verifies that non-empty input is encoded
// exactly once.
func TestCount_DelegatesToEncoder(t *testing.T) {
	enc := &stubEncoder{}
	c := tokens.NewCounterWithEncoder(enc)
	if got := c.Count("one two three"); got != 3 {
		t.Fatalf("Count = %d, want 3", got)
	}
	if enc.calls != 1 {
		t.Errorf("encoder called %d times, want 1", enc.calls)
	}
}

// TestEstimatePrompt_ShortUsesHeuristic verifies that prompts under the word
// threshold never reach the exact encoder.
func TestEstimatePrompt_ShortUsesHeuristic(t *testing.T) {
	enc := &stubEncoder{}
	c := tokens.NewCounterWithEncoder(enc)

	got := c.EstimatePrompt("add two and three")
	if want := tokens.WordEstimate(4); got != want {
		t.Errorf("EstimatePrompt = %d, want heuristic value %d", got, want)
	}
	if enc.calls != 0 {
		t.Errorf("encoder called %d times for a short prompt, want 0", enc.calls)
	}
}

// TestEstimatePrompt_LongUsesEncoder verifies that prompts at or above the
// word threshold are encoded exactly.
func TestEstimatePrompt_LongUsesEncoder(t *testing.T) {
	enc := &stubEncoder{}
	c := tokens.NewCounterWithEncoder(enc)

	long := strings.TrimSpace(strings.Repeat("word ", 600))
	got := c.EstimatePrompt(long)
	if got != 600 {
		t.Errorf("EstimatePrompt = %d, want exact count 600", got)
	}
	if enc.calls != 1 {
		t.Errorf("encoder called %d times for a long prompt, want 1", enc.calls)
	}
}
