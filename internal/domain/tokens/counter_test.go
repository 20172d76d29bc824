package tokens

import (
	"strings"
	"testing"
)

func TestCounter_EstimateMode(t *testing.T) {
	c := &Counter{} // no encoding loaded

	if c.Exact() {
		t.Fatal("expected estimate mode")
	}

	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
		{strings.Repeat("x", 401), 101},
	}
	for _, tc := range cases {
		if got := c.Count(tc.text); got != tc.want {
			t.Errorf("Count(%d bytes) = %d, want %d", len(tc.text), got, tc.want)
		}
	}
}

func TestCounter_CountAll(t *testing.T) {
	c := &Counter{}
	got := c.CountAll([]string{"abcd", "abcde", ""})
	if got != 3 {
		t.Errorf("CountAll = %d, want 3", got)
	}
}

func TestEstimateCost(t *testing.T) {
	cost, err := EstimateCost(1_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost.Tokens != 1_000_000 {
		t.Errorf("expected tokens echoed back, got %d", cost.Tokens)
	}
	if cost.CostUSD != usdPerMillionTokens {
		t.Errorf("expected one million tokens to cost the per-million rate, got %v", cost.CostUSD)
	}
	if cost.CostCNY != roundMicro(usdPerMillionTokens*cnyPerUSD) {
		t.Errorf("unexpected CNY cost %v", cost.CostCNY)
	}
}

func TestEstimateCost_Zero(t *testing.T) {
	cost, err := EstimateCost(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost.CostUSD != 0 || cost.CostCNY != 0 {
		t.Errorf("expected zero cost, got %+v", cost)
	}
}

func TestEstimateCost_Negative(t *testing.T) {
	if _, err := EstimateCost(-1); err == nil {
		t.Fatal("expected error for negative count")
	}
}
