package transfer

import (
	"context"
)

// Handler 处理来自消息队列的汇款 ID。
type Handler func(ctx context.Context, transferID string) error

// Producer 负责向队列投递汇款。
type Producer interface {
	Publish(ctx context.Context, transferID string) error
	Close() error
}

// Consumer 负责从队列中消费汇款。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
