package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"RemitChain/internal/currency"
	"RemitChain/internal/llm"
)

// 回退路径的固定置信度：启发式结果，未经模型确认。
const fallbackConfidence = 0.7

// 目标币种完全靠默认值兜底时使用的较低置信度，
// 提示调用方结果带有未消解的歧义。
const defaultedTargetConfidence = 0.6

var (
	amountPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
)

// FallbackSource 是不依赖任何外部服务的确定性解析路径。
// 同样的输入永远产生同样的输出。
type FallbackSource struct {
	registry *currency.Registry
}

var _ Source = (*FallbackSource)(nil)

// NewFallbackSource 创建确定性解析路径。
func NewFallbackSource(registry *currency.Registry) *FallbackSource {
	return &FallbackSource{registry: registry}
}

// Name 返回路径名称。
func (s *FallbackSource) Name() string {
	return "fallback"
}

// Resolve 按固定规则从文本中提取意图。金额缺失时返回 Amount 为 0 的
// 原始意图，由 Parser 统一判定为解析失败。
func (s *FallbackSource) Resolve(_ context.Context, text string) (*llm.RawIntent, error) {
	lower := strings.ToLower(text)

	raw := &llm.RawIntent{
		Action:     resolveAction(lower),
		Confidence: fallbackConfidence,
	}

	if match := amountPattern.FindString(lower); match != "" {
		amount, err := strconv.ParseFloat(match, 64)
		if err == nil {
			raw.Amount = amount
		}
	}

	source, ok := s.registry.MatchCurrency(lower)
	if !ok {
		source = currency.BaseSymbol
	}
	raw.SourceCurrency = source

	target, ok := s.registry.MatchCountry(lower)
	if !ok {
		target = currency.BaseSymbol
		raw.Confidence = defaultedTargetConfidence
	}
	if target == source {
		target = s.registry.AlternateFor(source)
	}
	raw.TargetCurrency = target

	if address := addressPattern.FindString(text); address != "" {
		raw.Recipient = address
		raw.RecipientType = RecipientTypeAddress
	} else {
		raw.RecipientType = RecipientTypeCountry
	}

	return raw, nil
}

func resolveAction(lower string) string {
	switch {
	case strings.Contains(lower, "convert") || strings.Contains(lower, "swap"):
		return ActionConvert
	case strings.Contains(lower, "rate") || strings.Contains(lower, "price"):
		return ActionCheckRate
	default:
		return ActionSend
	}
}
