package intent

import (
	"context"
	"errors"
	"testing"

	"RemitChain/internal/currency"
	"RemitChain/internal/llm"
)

type stubClient struct {
	raw   *llm.RawIntent
	err   error
	calls int
}

func (s *stubClient) ParseIntent(_ context.Context, _ llm.Request) (*llm.RawIntent, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

func TestFallbackSendToCountry(t *testing.T) {
	parser := NewParser(currency.NewRegistry(), nil)

	result, err := parser.Parse(context.Background(), "Send $50 to Kenya")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != ActionSend {
		t.Fatalf("expected send, got %s", result.Action)
	}
	if result.Amount != 50 {
		t.Fatalf("expected amount 50, got %v", result.Amount)
	}
	if result.SourceCurrency != "cUSD" || result.TargetCurrency != "cKES" {
		t.Fatalf("unexpected currencies: %s -> %s", result.SourceCurrency, result.TargetCurrency)
	}
	if result.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %v", result.Confidence)
	}
	if result.RecipientType != RecipientTypeCountry {
		t.Fatalf("expected country recipient type, got %s", result.RecipientType)
	}
}

func TestFallbackExplicitCurrencyBeatsCountry(t *testing.T) {
	parser := NewParser(currency.NewRegistry(), nil)

	result, err := parser.Parse(context.Background(), "send 100 cEUR to Kenya")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SourceCurrency != "cEUR" {
		t.Fatalf("expected source cEUR, got %s", result.SourceCurrency)
	}
	if result.TargetCurrency != "cKES" {
		t.Fatalf("expected target cKES, got %s", result.TargetCurrency)
	}
}

func TestFallbackActions(t *testing.T) {
	parser := NewParser(currency.NewRegistry(), nil)

	cases := []struct {
		text   string
		action string
	}{
		{"convert 20 cUSD", ActionConvert},
		{"swap 20 dollars for euros", ActionConvert},
		{"what is the rate for 1 cUSD", ActionCheckRate},
		{"send 20 to brazil", ActionSend},
	}
	for _, tc := range cases {
		result, err := parser.Parse(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("text %q: unexpected error: %v", tc.text, err)
		}
		if result.Action != tc.action {
			t.Fatalf("text %q: expected %s, got %s", tc.text, tc.action, result.Action)
		}
	}
}

func TestFallbackAddressRecipient(t *testing.T) {
	parser := NewParser(currency.NewRegistry(), nil)

	result, err := parser.Parse(context.Background(),
		"send 25 cUSD to 0x765DE816845861e75A25fCA122bb6898B8B1282a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RecipientType != RecipientTypeAddress {
		t.Fatalf("expected address recipient type, got %s", result.RecipientType)
	}
	if result.Recipient != "0x765DE816845861e75A25fCA122bb6898B8B1282a" {
		t.Fatalf("unexpected recipient: %s", result.Recipient)
	}
}

func TestFallbackNoOpSwapForbidden(t *testing.T) {
	parser := NewParser(currency.NewRegistry(), nil)

	result, err := parser.Parse(context.Background(), "send 10 dollars to america")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TargetCurrency == result.SourceCurrency {
		t.Fatalf("target must differ from source, both %s", result.SourceCurrency)
	}
	if result.TargetCurrency != "cEUR" {
		t.Fatalf("expected alternate cEUR, got %s", result.TargetCurrency)
	}
}

func TestFallbackDefaultedTargetLowersConfidence(t *testing.T) {
	parser := NewParser(currency.NewRegistry(), nil)

	result, err := parser.Parse(context.Background(), "send 30 euros")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 0.6 {
		t.Fatalf("expected confidence 0.6 for defaulted target, got %v", result.Confidence)
	}
}

func TestParseFailureWithoutAmount(t *testing.T) {
	parser := NewParser(currency.NewRegistry(), nil)

	texts := []string{
		"send money to kenya",
		"hello there",
		"",
	}
	for _, text := range texts {
		_, err := parser.Parse(context.Background(), text)
		var failure *ParseFailure
		if !errors.As(err, &failure) {
			t.Fatalf("text %q: expected ParseFailure, got %v", text, err)
		}
		if len(failure.Suggestions) == 0 {
			t.Fatalf("text %q: suggestions must not be empty", text)
		}
	}
}

func TestModelResultPreferred(t *testing.T) {
	client := &stubClient{raw: &llm.RawIntent{
		Action:         "send",
		Amount:         75,
		SourceCurrency: "cUSD",
		TargetCurrency: "cREAL",
		RecipientType:  "country",
		Confidence:     0.92,
	}}
	parser := NewParser(currency.NewRegistry(), client)

	result, err := parser.Parse(context.Background(), "wire 75 bucks to brazil")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected one model call, got %d", client.calls)
	}
	if result.TargetCurrency != "cREAL" || result.Confidence != 0.92 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestModelErrorFallsBack(t *testing.T) {
	client := &stubClient{err: errors.New("upstream timeout")}
	parser := NewParser(currency.NewRegistry(), client)

	result, err := parser.Parse(context.Background(), "Send $50 to Kenya")
	if err != nil {
		t.Fatalf("expected fallback to recover, got %v", err)
	}
	if result.Confidence != 0.7 {
		t.Fatalf("expected fallback confidence 0.7, got %v", result.Confidence)
	}
}

func TestModelZeroAmountFallsBack(t *testing.T) {
	client := &stubClient{raw: &llm.RawIntent{Action: "send", Amount: 0}}
	parser := NewParser(currency.NewRegistry(), client)

	result, err := parser.Parse(context.Background(), "Send $50 to Kenya")
	if err != nil {
		t.Fatalf("expected fallback to recover, got %v", err)
	}
	if result.Amount != 50 {
		t.Fatalf("expected amount 50 from fallback, got %v", result.Amount)
	}
}

func TestModelUnknownCurrencyCoerced(t *testing.T) {
	client := &stubClient{raw: &llm.RawIntent{
		Action:         "send",
		Amount:         10,
		SourceCurrency: "DOGE",
		TargetCurrency: "cNGN",
		Confidence:     1.4,
	}}
	parser := NewParser(currency.NewRegistry(), client)

	result, err := parser.Parse(context.Background(), "send 10 doge to nigeria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SourceCurrency != "cUSD" {
		t.Fatalf("unknown source must coerce to cUSD, got %s", result.SourceCurrency)
	}
	// cNGN 未启用，归一化为 cUSD 后与来源冲突，必须换成替代默认币。
	if result.TargetCurrency != "cEUR" {
		t.Fatalf("expected cEUR, got %s", result.TargetCurrency)
	}
	if result.Confidence != 1 {
		t.Fatalf("confidence must clamp to 1, got %v", result.Confidence)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	normalizer := NewNormalizer(currency.NewRegistry())

	raws := []*llm.RawIntent{
		nil,
		{Action: "teleport", Amount: -3, SourceCurrency: "XYZ", Confidence: -0.4},
		{Action: "send", Amount: 50, SourceCurrency: "cUSD", TargetCurrency: "cKES", RecipientType: "address", Confidence: 0.7},
		{Action: "CONVERT", Amount: 9.5, TargetCurrency: "cEUR", Confidence: 2},
	}
	for i, raw := range raws {
		first := normalizer.Normalize(raw)
		second := normalizer.Normalize(&llm.RawIntent{
			Action:         first.Action,
			Amount:         first.Amount,
			SourceCurrency: first.SourceCurrency,
			TargetCurrency: first.TargetCurrency,
			Recipient:      first.Recipient,
			RecipientType:  first.RecipientType,
			Memo:           first.Memo,
			Confidence:     first.Confidence,
		})
		if first != second {
			t.Fatalf("case %d: normalize not idempotent: %+v vs %+v", i, first, second)
		}
	}
}
