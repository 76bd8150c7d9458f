package ratelimit

import (
	"github.com/tiktoken-go/tokenizer"

	"llmrelay/pkg/llm"
)

// TokenEstimator estimates how many tokens a completion request will
// consume, used to size the rate limiter's token-bucket draw before the
// call is made.
type TokenEstimator interface {
	EstimatePrompt(req llm.CompletionRequest) int
}

// TiktokenEstimator counts tokens with the real tokenizer the teacher
// wires elsewhere only through a character-count fallback
// (utils.CountTokensSimple); here it is exercised directly, grounded on
// pkg/utils/tiktoken.go's codec-per-model pattern.
type TiktokenEstimator struct {
	codec tokenizer.Codec
}

// NewTiktokenEstimator builds an estimator using the GPT-4 encoding, a
// reasonable approximation across backends per the teacher's own
// fallback-to-GPT4 policy for non-OpenAI models.
func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{codec: codec}, nil
}

func (e *TiktokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	total := 0
	for _, m := range req.Messages {
		total += e.countTokens(m.Content) + 4 // per-message role/formatting overhead
	}
	return total + req.MaxTokens
}

func (e *TiktokenEstimator) countTokens(text string) int {
	if e.codec == nil {
		return len(text) / 4
	}
	count, err := e.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// charCountEstimator is the zero-dependency fallback used only when the
// tokenizer codec fails to build (e.g. an unsupported encoding name); it
// is never the default, only a defensive fallback.
type charCountEstimator struct{}

func (charCountEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	total := 0
	for _, m := range req.Messages {
		total += len(m.Content)/4 + 4
	}
	return total + req.MaxTokens
}

// NewDefaultEstimator returns a TiktokenEstimator, falling back to the
// character-count estimator only if the tokenizer cannot be constructed.
func NewDefaultEstimator() TokenEstimator {
	est, err := NewTiktokenEstimator()
	if err != nil {
		return charCountEstimator{}
	}
	return est
}
