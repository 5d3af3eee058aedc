package transfer

import "context"

// RecoveryHandler 定义汇款不可重试失败时的补偿策略。
// 资金动作没有降级结果可言，补偿只做善后（通知用户、
// 记录退款工单等），汇款本身仍按失败流程落库。
type RecoveryHandler interface {
	Recover(ctx context.Context, transfer *Transfer, cause error) error
}
