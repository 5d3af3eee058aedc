// Package intent 负责把自由文本解析为可执行的汇款意图。
// 解析有模型与确定性回退两条路径，最终都经过同一套校验归一化，
// 下游编排器只会看到统一且域内合法的 Intent。
package intent

import (
	"context"
	"strings"

	"RemitChain/internal/llm"
)

// 合法的 action 取值。
const (
	ActionSend      = "send"
	ActionConvert   = "convert"
	ActionCheckRate = "check_rate"
)

// 合法的 recipientType 取值。
const (
	RecipientTypeAddress = "address"
	RecipientTypeContact = "contact"
	RecipientTypeCountry = "country"
)

// Intent 是经过校验归一化的汇款意图，所有字段都保证在各自的取值域内。
type Intent struct {
	Action         string  `json:"action"`
	Amount         float64 `json:"amount"`
	SourceCurrency string  `json:"sourceCurrency"`
	TargetCurrency string  `json:"targetCurrency"`
	Recipient      string  `json:"recipient,omitempty"`
	RecipientType  string  `json:"recipientType"`
	Memo           string  `json:"memo,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// ParseFailure 表示文本无法解析为有效意图。
// 它面向最终用户，必须携带可操作的修正建议。
type ParseFailure struct {
	Reason      string
	Suggestions []string
}

// Error 实现 error 接口。
func (f *ParseFailure) Error() string {
	if f == nil {
		return ""
	}
	if len(f.Suggestions) == 0 {
		return f.Reason
	}
	return f.Reason + " (" + strings.Join(f.Suggestions, "; ") + ")"
}

// Source 抽象一条意图解析路径。模型与确定性回退都是它的实现，
// 由 Parser 按可用性依次尝试。
type Source interface {
	// Name 返回路径名称，用于日志与结果标注。
	Name() string
	// Resolve 把文本解析为未校验的原始意图。
	Resolve(ctx context.Context, text string) (*llm.RawIntent, error)
}
