package intent

import (
	"context"
	"log/slog"

	"RemitChain/internal/currency"
	"RemitChain/internal/llm"
	"RemitChain/pkg/logger"
)

// ModelSource 通过外部大模型解析意图，并附带当前可用币种作为上下文。
type ModelSource struct {
	client   llm.Client
	registry *currency.Registry
}

var _ Source = (*ModelSource)(nil)

// NewModelSource 创建模型解析路径。
func NewModelSource(client llm.Client, registry *currency.Registry) *ModelSource {
	return &ModelSource{client: client, registry: registry}
}

// Name 返回路径名称。
func (s *ModelSource) Name() string {
	return "model"
}

// Resolve 调用大模型解析文本。
func (s *ModelSource) Resolve(ctx context.Context, text string) (*llm.RawIntent, error) {
	contexts := make([]llm.CurrencyContext, 0, 8)
	for _, d := range s.registry.Active() {
		contexts = append(contexts, llm.CurrencyContext{Symbol: d.Symbol, Country: d.Country})
	}
	return s.client.ParseIntent(ctx, llm.Request{Text: text, Currencies: contexts})
}

// Parser 依次尝试各条解析路径，并对结果做统一的校验归一化。
// 金额必须存在、目标币不得与来源币相同这两条约束只在这里强制，
// 与哪条路径产出结果无关。
type Parser struct {
	registry   *currency.Registry
	normalizer *Normalizer
	sources    []Source
	logger     *slog.Logger
}

// NewParser 创建解析器。client 为 nil 时只保留确定性回退路径。
func NewParser(registry *currency.Registry, client llm.Client) *Parser {
	sources := make([]Source, 0, 2)
	if client != nil {
		sources = append(sources, NewModelSource(client, registry))
	}
	sources = append(sources, NewFallbackSource(registry))

	return &Parser{
		registry:   registry,
		normalizer: NewNormalizer(registry),
		sources:    sources,
		logger:     logger.Named("intent"),
	}
}

// defaultSuggestions 在解析失败时提示用户可行的表达方式。
var defaultSuggestions = []string{
	`Try: "Send $50 to Kenya"`,
	`Try: "Convert 100 cUSD to cEUR"`,
	`Try: "Send 25 cUSD to 0x1234...abcd"`,
}

// Parse 把文本解析为校验后的意图。只要回退路径可用就不会返回
// 内部错误；唯一的失败形态是 *ParseFailure。
func (p *Parser) Parse(ctx context.Context, text string) (*Intent, error) {
	for _, source := range p.sources {
		raw, err := source.Resolve(ctx, text)
		if err != nil {
			p.logger.Warn("意图解析路径失败，尝试下一条",
				slog.String("source", source.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if raw == nil || raw.Amount <= 0 {
			p.logger.Debug("解析结果缺少有效金额",
				slog.String("source", source.Name()))
			continue
		}

		result := p.finalize(raw)
		p.logger.Info("意图解析成功",
			slog.String("source", source.Name()),
			slog.String("action", result.Action),
			slog.Float64("amount", result.Amount),
			slog.String("sourceCurrency", result.SourceCurrency),
			slog.String("targetCurrency", result.TargetCurrency),
			slog.Float64("confidence", result.Confidence))
		return result, nil
	}

	return nil, &ParseFailure{
		Reason:      "could not find an amount in the request",
		Suggestions: defaultSuggestions,
	}
}

// finalize 归一化原始意图并消除同币种转换。
func (p *Parser) finalize(raw *llm.RawIntent) *Intent {
	result := p.normalizer.Normalize(raw)
	if result.TargetCurrency == result.SourceCurrency {
		result.TargetCurrency = p.registry.AlternateFor(result.SourceCurrency)
	}
	return &result
}
