// Package pricing maps model identifiers to per-token price tiers.
package pricing

import (
	"regexp"
	"strings"
)

// Price holds per-token USD rates for a model family variant.
type Price struct {
	// Prompt is the cost per prompt token.
	Prompt float64
	// Response is the cost per completion token.
	Response float64
}

// rule binds model-id prefixes (or a pattern) to a price tier.
type rule struct {
	// prefixes are matched with strings.HasPrefix, any of them.
	prefixes []string
	// pattern is an optional alternative match for the model id.
	pattern *regexp.Regexp
	// price is the tier returned on a match.
	price Price
}

// gpt4DatedPreview matches dated gpt-4 preview snapshots, e.g. gpt-4-0125-preview.
var gpt4DatedPreview = regexp.MustCompile(`^gpt-4-\d\d\d\d-preview`)

// rules is evaluated in order; the first match wins. Specific variants must
// stay ahead of their more general family prefixes (16k before turbo, dated
// snapshots before bare gpt-4o, turbo before bare gpt-4).
var rules = []rule{
	{prefixes: []string{"gpt-3.5-turbo-16k"}, price: Price{Prompt: 0.003 / 1_000, Response: 0.004 / 1_000}},
	{prefixes: []string{"gpt-3.5-turbo"}, price: Price{Prompt: 0.50 / 1_000_000, Response: 1.50 / 1_000_000}},
	{prefixes: []string{"gpt-4-32k"}, price: Price{Prompt: 60.0 / 1_000_000, Response: 120.0 / 1_000_000}},
	{prefixes: []string{"gpt-4o-mini"}, price: Price{Prompt: 0.150 / 1_000_000, Response: 0.600 / 1_000_000}},
	{prefixes: []string{"gpt-4o-2024-05-13", "chatgpt-4o-latest"}, price: Price{Prompt: 5.0 / 1_000_000, Response: 15.0 / 1_000_000}},
	{prefixes: []string{"gpt-4o"}, price: Price{Prompt: 2.50 / 1_000_000, Response: 10.0 / 1_000_000}},
	{prefixes: []string{"gpt-4-turbo"}, pattern: gpt4DatedPreview, price: Price{Prompt: 10.0 / 1_000_000, Response: 30.0 / 1_000_000}},
	{prefixes: []string{"gpt-4"}, price: Price{Prompt: 30.0 / 1_000_000, Response: 60.0 / 1_000_000}},
	{prefixes: []string{"o1-preview"}, price: Price{Prompt: 15.0 / 1_000_000, Response: 60.0 / 1_000_000}},
	{prefixes: []string{"o1-mini"}, price: Price{Prompt: 3.0 / 1_000_000, Response: 12.0 / 1_000_000}},
}

// Resolve returns the price tier for a model id, or nil when no tier matches.
// A nil result means cost accounting is omitted; it is never an error.
func Resolve(model string) *Price {
	for _, item := range rules {
		for _, prefix := range item.prefixes {
			if strings.HasPrefix(model, prefix) {
				price := item.price
				return &price
			}
		}
		if item.pattern != nil && item.pattern.MatchString(model) {
			price := item.price
			return &price
		}
	}
	return nil
}

// Cost computes the dollar cost of a usage split under this tier.
func (p *Price) Cost(promptTokens int, completionTokens int) float64 {
	if p == nil {
		return 0
	}
	return float64(promptTokens)*p.Prompt + float64(completionTokens)*p.Response
}
