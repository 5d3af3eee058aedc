package intent

import (
	"strings"

	"RemitChain/internal/currency"
	"RemitChain/internal/llm"
)

// 置信度为 0 通常意味着字段缺失而不是模型真的零置信，
// 归一化时用中性值代替。
const neutralConfidence = 0.5

// Normalizer 把任意形状的原始意图收敛到 Intent 的取值域内。
type Normalizer struct {
	registry *currency.Registry
}

// NewNormalizer 创建归一化器。
func NewNormalizer(registry *currency.Registry) *Normalizer {
	return &Normalizer{registry: registry}
}

// Normalize 是纯函数：不访问外部状态，不会失败，且满足幂等，
// 对已归一化的结果再次归一化不改变任何字段。
func (n *Normalizer) Normalize(raw *llm.RawIntent) Intent {
	if raw == nil {
		raw = &llm.RawIntent{}
	}

	intent := Intent{
		Action:         normalizeAction(raw.Action),
		Amount:         raw.Amount,
		SourceCurrency: n.normalizeCurrency(raw.SourceCurrency),
		TargetCurrency: n.normalizeCurrency(raw.TargetCurrency),
		Recipient:      strings.TrimSpace(raw.Recipient),
		RecipientType:  normalizeRecipientType(raw.RecipientType),
		Memo:           strings.TrimSpace(raw.Memo),
		Confidence:     normalizeConfidence(raw.Confidence),
	}
	if intent.Amount < 0 {
		intent.Amount = 0
	}
	return intent
}

func normalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionConvert:
		return ActionConvert
	case ActionCheckRate:
		return ActionCheckRate
	default:
		return ActionSend
	}
}

func (n *Normalizer) normalizeCurrency(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if n.registry.IsActive(symbol) {
		return symbol
	}
	return currency.BaseSymbol
}

func normalizeRecipientType(recipientType string) string {
	switch strings.ToLower(strings.TrimSpace(recipientType)) {
	case RecipientTypeAddress:
		return RecipientTypeAddress
	case RecipientTypeContact:
		return RecipientTypeContact
	default:
		return RecipientTypeCountry
	}
}

func normalizeConfidence(confidence float64) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence == 0 {
		confidence = neutralConfidence
	}
	return confidence
}
