package pricing

import (
	"testing"
)

func TestResolveSpecificBeforeGeneral(t *testing.T) {
	cases := []struct {
		model        string
		wantPrompt   float64
		wantResponse float64
	}{
		// Dated 4o snapshot must win over the bare gpt-4o tier.
		{"gpt-4o-2024-05-13", 5.0 / 1_000_000, 15.0 / 1_000_000},
		{"chatgpt-4o-latest", 5.0 / 1_000_000, 15.0 / 1_000_000},
		{"gpt-4o", 2.50 / 1_000_000, 10.0 / 1_000_000},
		{"gpt-4o-mini", 0.150 / 1_000_000, 0.600 / 1_000_000},
		// 16k variant must win over the standard 3.5 tier.
		{"gpt-3.5-turbo-16k-0613", 0.003 / 1_000, 0.004 / 1_000},
		{"gpt-3.5-turbo-0125", 0.50 / 1_000_000, 1.50 / 1_000_000},
		{"gpt-4-32k-0613", 60.0 / 1_000_000, 120.0 / 1_000_000},
		{"gpt-4-turbo-2024-04-09", 10.0 / 1_000_000, 30.0 / 1_000_000},
		{"gpt-4-0125-preview", 10.0 / 1_000_000, 30.0 / 1_000_000},
		{"gpt-4-0613", 30.0 / 1_000_000, 60.0 / 1_000_000},
		{"o1-preview", 15.0 / 1_000_000, 60.0 / 1_000_000},
		{"o1-mini-2024-09-12", 3.0 / 1_000_000, 12.0 / 1_000_000},
	}

	for _, testCase := range cases {
		price := Resolve(testCase.model)
		if price == nil {
			t.Fatalf("expected a tier for %s", testCase.model)
		}
		if price.Prompt != testCase.wantPrompt || price.Response != testCase.wantResponse {
			t.Fatalf("%s: got (%g, %g), want (%g, %g)",
				testCase.model, price.Prompt, price.Response, testCase.wantPrompt, testCase.wantResponse)
		}
	}
}

func TestResolveUnknownModel(t *testing.T) {
	for _, model := range []string{"", "llama-3.1-70b", "claude-3-opus", "o3"} {
		if price := Resolve(model); price != nil {
			t.Fatalf("expected no tier for %q, got %+v", model, price)
		}
	}
}

func TestPriceCost(t *testing.T) {
	price := Resolve("gpt-4o")
	if price == nil {
		t.Fatal("expected a tier for gpt-4o")
	}
	got := price.Cost(1_000_000, 1_000_000)
	if got != 2.50+10.0 {
		t.Fatalf("cost mismatch: got %g", got)
	}

	var absent *Price
	if absent.Cost(10, 10) != 0 {
		t.Fatal("nil tier must cost nothing")
	}
}
