package verification

import (
	"context"
	"testing"
)

func TestMemoryGateDefaultsToUnverified(t *testing.T) {
	gate := NewMemoryGate()

	record, err := gate.Verified(context.Background(), "0xAbC0000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("verified: %v", err)
	}
	if record.Verified {
		t.Fatal("unknown address should not be verified")
	}
}

func TestMemoryGateMarkVerified(t *testing.T) {
	gate := NewMemoryGate()
	ctx := context.Background()
	address := "0xAbC0000000000000000000000000000000000001"

	first, err := gate.MarkVerified(ctx, address)
	if err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if !first.Verified || first.VerifiedAt == 0 {
		t.Fatalf("unexpected record: %+v", first)
	}

	// 大小写不同的同一地址命中同一条记录。
	second, err := gate.Verified(ctx, "0xabc0000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("verified: %v", err)
	}
	if !second.Verified || second.VerifiedAt != first.VerifiedAt {
		t.Fatalf("expected same record, got %+v and %+v", first, second)
	}

	again, err := gate.MarkVerified(ctx, address)
	if err != nil {
		t.Fatalf("mark verified twice: %v", err)
	}
	if again.VerifiedAt != first.VerifiedAt {
		t.Fatalf("repeat mark should keep original timestamp, got %d and %d", first.VerifiedAt, again.VerifiedAt)
	}
}
