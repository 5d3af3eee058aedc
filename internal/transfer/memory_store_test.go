package transfer

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	transfers := []*Transfer{
		{ID: "t1", Message: "send 10 cUSD to Kenya", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", Message: "send 20 cUSD to Brazil", Status: StatusPending, MaxRetries: 3},
		{ID: "t3", Message: "send 30 cEUR to Kenya", Status: StatusPending, MaxRetries: 3},
	}

	for _, transfer := range transfers {
		if err := store.Create(ctx, transfer); err != nil {
			t.Fatalf("create transfer %s: %v", transfer.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "t2", CodeTransferProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", Receipt{TransferTxHash: "0xabc"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.transfers["t1"].UpdatedAt = base.Unix()
	store.transfers["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.transfers["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 transfers, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest transfer first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	succeeded, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", succeeded)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 transfers to match since filter, got %d", len(recent))
	}

	kenya, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("kenya")}))
	if err != nil {
		t.Fatalf("list query: %v", err)
	}
	if len(kenya) != 2 {
		t.Fatalf("expected 2 transfers to match query, got %d", len(kenya))
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	transfers := []*Transfer{
		{ID: "a", Message: "m1", Status: StatusPending, MaxRetries: 3},
		{ID: "b", Message: "m2", Status: StatusPending, MaxRetries: 3},
		{ID: "c", Message: "m3", Status: StatusPending, MaxRetries: 3},
	}

	for _, transfer := range transfers {
		if err := store.Create(ctx, transfer); err != nil {
			t.Fatalf("create transfer %s: %v", transfer.ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "b", CodeTransferProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", Receipt{TransferTxHash: "0xabc"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.transfers["a"].UpdatedAt = base.Unix()
	store.transfers["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.transfers["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("stats with result: %v", err)
	}
	if withResults.Total != 1 || withResults.Succeeded != 1 {
		t.Fatalf("unexpected stats with result: %+v", withResults)
	}

	failedOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("stats failed only: %v", err)
	}
	if failedOnly.Total != 1 || failedOnly.Failed != 1 {
		t.Fatalf("unexpected failed stats: %+v", failedOnly)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	transfer := &Transfer{ID: "t1", Message: "send 10 cUSD", Status: StatusPending, MaxRetries: 2}
	if err := store.Create(ctx, transfer); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "t1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed transfer: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTransferConflict) {
		t.Fatalf("expected conflict for running transfer, got %v", err)
	}

	if err := store.MarkFailed(ctx, "t1", CodeTransferProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); err != nil {
		t.Fatalf("reclaim after failure: %v", err)
	}

	if err := store.MarkFailed(ctx, "t1", CodeTransferProcessing, "boom again", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTransferExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "t1", Receipt{TransferTxHash: "0xabc"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTransferCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
}
