package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/observability/alerting"
)

const testRecipient = "0x1111111111111111111111111111111111111111"

type fakeExecutor struct {
	processed atomic.Int32
	failures  atomic.Int32
	failUntil int32
	failWith  error
	latency   time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, transfer *Transfer) (*Receipt, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failWith != nil && f.failures.Load() < f.failUntil {
		f.failures.Add(1)
		return nil, f.failWith
	}
	f.processed.Add(1)
	return &Receipt{
		TransferTxHash: "0x" + transfer.ID,
		SourceSymbol:   "cUSD",
		TargetSymbol:   "cKES",
		AmountUnits:    "1000000000000000000",
		MinTargetUnits: "950000000000000000",
		ChainID:        "42220",
	}, nil
}

type recordingDispatcher struct {
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.events = append(d.events, event)
	return nil
}

type recordingRecovery struct {
	calls int
}

func (r *recordingRecovery) Recover(context.Context, *Transfer, error) error {
	r.calls++
	return nil
}

func TestProcessorHandlesConcurrentTransfers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		message := fmt.Sprintf("send %d cUSD to Kenya", i+1)
		if _, err := service.Submit(ctx, SubmitRequest{Message: message, RecipientAddress: testRecipient}); err != nil {
			t.Fatalf("提交汇款失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("汇款未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesRetryableFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{
		failUntil: 2,
		failWith:  xerrors.New(CodeTransferProcessing, "temporary chain hiccup"),
	}

	service := NewService(store, queue, 5)
	processor := NewProcessor(executor, store, queue, queue)

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	submitted, err := service.Submit(ctx, SubmitRequest{Message: "send 5 cUSD to Kenya", RecipientAddress: testRecipient})
	if err != nil {
		t.Fatalf("提交汇款失败: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待汇款完成失败: %v", err)
	}
	if final.Status != StatusSucceeded {
		t.Fatalf("expected success after retries, got %s (%s)", final.Status, final.LastError)
	}
	if final.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", final.Attempts)
	}
	if final.Result == nil || final.Result.TransferTxHash == "" {
		t.Fatalf("expected receipt on success, got %+v", final.Result)
	}
	cancel()
}

func TestProcessorTerminalFailureAlertsAndCompensates(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{
		failUntil: 10,
		failWith:  xerrors.New(xerrors.CodeOnChainFailure, "execution reverted: insufficient balance"),
	}
	dispatcher := &recordingDispatcher{}
	recovery := &recordingRecovery{}

	processor := NewProcessor(executor, store, queue, queue,
		WithAlertDispatcher(dispatcher),
		WithRecoveryHandler(recovery),
	)

	transfer := &Transfer{ID: "t1", Message: "send 5 cUSD to Kenya", RecipientAddress: testRecipient, Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, transfer); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, "t1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.ErrorCode != string(xerrors.CodeOnChainFailure) {
		t.Fatalf("unexpected error code: %s", stored.ErrorCode)
	}
	if recovery.calls != 1 {
		t.Fatalf("expected one recovery call, got %d", recovery.calls)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("expected one alert event, got %d", len(dispatcher.events))
	}
	event := dispatcher.events[0]
	if event.TransferID != "t1" || event.Metadata["stage"] != "terminal" {
		t.Fatalf("unexpected alert event: %+v", event)
	}

	// 不可重试失败不会重投队列。
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", queue.Len())
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, 3)

	first, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Message: "send 5 cUSD to Kenya", RecipientAddress: testRecipient})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Message: "send 5 cUSD to Kenya", RecipientAddress: testRecipient})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same transfer, got %s and %s", first.ID, second.ID)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected a single queued transfer, got %d", queue.Len())
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1), 3)

	if _, err := service.Submit(context.Background(), SubmitRequest{RecipientAddress: testRecipient}); err == nil {
		t.Fatal("expected validation error for empty message and intent")
	}
	if _, err := service.Submit(context.Background(), SubmitRequest{Message: "send 5 cUSD"}); err == nil {
		t.Fatal("expected validation error for empty recipient")
	}
}
