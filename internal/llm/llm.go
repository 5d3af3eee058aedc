package llm

import "context"

// Request 描述一次意图解析调用，附带系统当前可用的币种上下文。
type Request struct {
	Text       string
	Currencies []CurrencyContext
}

// CurrencyContext 提供给大模型的币种与国家对应关系。
type CurrencyContext struct {
	Symbol  string
	Country string
}

// RawIntent 是大模型返回的原始意图，未经校验，任何字段都可能缺失或越界。
type RawIntent struct {
	Action         string  `json:"action"`
	Amount         float64 `json:"amount"`
	SourceCurrency string  `json:"sourceCurrency"`
	TargetCurrency string  `json:"targetCurrency"`
	Recipient      string  `json:"recipient,omitempty"`
	RecipientType  string  `json:"recipientType,omitempty"`
	Memo           string  `json:"memo,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// Client 定义了调用大模型解析意图的统一接口。
type Client interface {
	ParseIntent(ctx context.Context, req Request) (*RawIntent, error)
}
