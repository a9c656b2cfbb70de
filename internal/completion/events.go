// Package completion normalizes provider chat responses into a uniform
// event sequence with cost accounting.
package completion

import (
	"errors"

	"github.com/sghael/gpt-cli/internal/pricing"
)

// ErrBadRequest marks a request the service rejected as invalid. The
// caller should roll back the last outbound turn rather than retry.
var ErrBadRequest = errors.New("bad request")

// ErrCompletion marks a provider failure that is safe to retry.
var ErrCompletion = errors.New("completion failed")

// Event is one normalized completion event. It is either a TokenDelta
// or a Usage value.
type Event interface {
	isEvent()
}

// TokenDelta carries one increment of assistant text.
type TokenDelta struct {
	// Text is the streamed text fragment.
	Text string
}

func (TokenDelta) isEvent() {}

// Usage reports token totals for a finished turn. At most one Usage
// event is produced per turn and it follows every TokenDelta.
type Usage struct {
	// PromptTokens counts input tokens.
	PromptTokens int
	// CompletionTokens counts output tokens.
	CompletionTokens int
	// TotalTokens is the provider-reported total.
	TotalTokens int
	// Price is the resolved pricing tier, or nil when the model has no
	// known tier. Cost accounting is skipped in that case.
	Price *pricing.Price
}

func (Usage) isEvent() {}

// Cost returns the turn cost in dollars. The second return value is
// false when no pricing tier was resolved for the model.
func (u Usage) Cost() (float64, bool) {
	if u.Price == nil {
		return 0, false
	}
	return u.Price.Cost(u.PromptTokens, u.CompletionTokens), true
}
