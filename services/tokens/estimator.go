package tokens

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/upb/llm-router/models"
)

// messageOverhead approximates the per-message framing tokens chat APIs
// charge on top of the content itself.
const messageOverhead = 4

// Estimator approximates token counts for prompts and completions. The
// cl100k_base encoding is close enough across current chat models for
// context-window screening; exact usage always comes from the provider
// response when available.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator creates an estimator. When the encoding cannot be loaded
// (no embedded vocabulary), estimation falls back to a chars/4 heuristic.
func NewEstimator() *Estimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{enc: enc}
}

// Count returns the estimated token count of a single string.
func (e *Estimator) Count(text string) int {
	if e.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// CountMessages returns the estimated prompt size of a conversation.
func (e *Estimator) CountMessages(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.Count(m.Content) + messageOverhead
	}
	return total
}
