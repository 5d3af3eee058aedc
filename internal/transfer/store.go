package transfer

import (
	"context"

	xerrors "RemitChain/internal/errors"
)

// Store 抽象了汇款状态的持久化接口。
type Store interface {
	Create(ctx context.Context, transfer *Transfer) error
	Get(ctx context.Context, id string) (*Transfer, error)
	Claim(ctx context.Context, id string) (*Transfer, error)
	MarkSucceeded(ctx context.Context, id string, receipt Receipt) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Transfer, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}
