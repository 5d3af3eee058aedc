// Package verification 维护钱包地址的身份核验标记。
// 该标记仅作展示参考，汇款流程不会因为未核验而被拦截。
package verification

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Record 描述一个地址的核验状态。
type Record struct {
	Address    string `json:"address"`
	Verified   bool   `json:"verified"`
	VerifiedAt int64  `json:"verified_at,omitempty"`
}

// Gate 抽象核验标记的读写。
type Gate interface {
	Verified(ctx context.Context, address string) (Record, error)
	MarkVerified(ctx context.Context, address string) (Record, error)
	Close() error
}

// MemoryGate 以内存方式保存核验标记，用于测试与单机部署。
type MemoryGate struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Gate = (*MemoryGate)(nil)

// NewMemoryGate 创建 MemoryGate。
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{records: make(map[string]Record)}
}

// Verified 返回地址的核验状态，未知地址视为未核验。
func (g *MemoryGate) Verified(_ context.Context, address string) (Record, error) {
	key := normalizeAddress(address)
	g.mu.RLock()
	defer g.mu.RUnlock()
	if record, ok := g.records[key]; ok {
		return record, nil
	}
	return Record{Address: address, Verified: false}, nil
}

// MarkVerified 将地址标记为已核验。重复标记保留首次时间。
func (g *MemoryGate) MarkVerified(_ context.Context, address string) (Record, error) {
	key := normalizeAddress(address)
	g.mu.Lock()
	defer g.mu.Unlock()
	if record, ok := g.records[key]; ok && record.Verified {
		return record, nil
	}
	record := Record{Address: address, Verified: true, VerifiedAt: time.Now().Unix()}
	g.records[key] = record
	return record, nil
}

// Close 实现 Gate 接口。
func (g *MemoryGate) Close() error { return nil }

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
