package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackCharsPerToken = 4

// Estimator counts tokens in text. It prefers a real BPE tokenizer and falls
// back to a characters-per-token heuristic when no encoding is available for
// the model (or the encoding data cannot be loaded).
type Estimator struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewEstimator creates a token estimator with an empty encoder cache.
func NewEstimator() *Estimator {
	return &Estimator{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// Count returns the estimated token count of text for the given model. It
// never fails: unknown models degrade to the heuristic estimate.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := e.encoder(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	n := len(text) / fallbackCharsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Estimator) encoder(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Non-OpenAI model names have no registered encoding; cl100k_base
		// gives a reasonable estimate for most modern tokenizers.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	e.encoders[model] = enc
	return enc
}
