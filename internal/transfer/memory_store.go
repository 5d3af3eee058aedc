package transfer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "RemitChain/internal/errors"
)

// MemoryStore 以内存方式保存汇款状态，主要用于测试与单机部署。
type MemoryStore struct {
	mu        sync.RWMutex
	transfers map[string]*Transfer
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transfers: make(map[string]*Transfer)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, transfer *Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if transfer == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "transfer 不能为空")
	}
	if transfer.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "汇款 ID 不能为空")
	}
	if _, ok := m.transfers[transfer.ID]; ok {
		return ErrTransferConflict
	}
	now := time.Now().Unix()
	if transfer.CreatedAt == 0 {
		transfer.CreatedAt = now
	}
	transfer.UpdatedAt = now
	m.transfers[transfer.ID] = cloneTransfer(transfer)
	return nil
}

// Get 返回汇款记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	transfer, ok := m.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return cloneTransfer(transfer), nil
}

// Claim 将汇款状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfer, ok := m.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	switch transfer.Status {
	case StatusSucceeded:
		return cloneTransfer(transfer), ErrTransferCompleted
	case StatusRunning:
		return cloneTransfer(transfer), ErrTransferConflict
	}
	if transfer.Attempts >= transfer.MaxRetries {
		return cloneTransfer(transfer), ErrTransferExhausted
	}
	transfer.Status = StatusRunning
	transfer.Attempts++
	transfer.LastError = ""
	transfer.ErrorCode = ""
	transfer.UpdatedAt = time.Now().Unix()
	return cloneTransfer(transfer), nil
}

// MarkSucceeded 记录成功凭据。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, receipt Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfer, ok := m.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	transfer.Status = StatusSucceeded
	transfer.Result = &receipt
	transfer.LastError = ""
	transfer.ErrorCode = ""
	transfer.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记汇款失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfer, ok := m.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	transfer.Status = StatusFailed
	transfer.LastError = lastError
	transfer.ErrorCode = string(code)
	transfer.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合过滤条件的汇款。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Transfer, 0, len(m.transfers))
	for _, transfer := range m.transfers {
		if !matchesListFilters(transfer, opts) {
			continue
		}
		results = append(results, cloneTransfer(transfer))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset >= len(results) {
		return []*Transfer{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的汇款数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := Stats{}
	for _, transfer := range m.transfers {
		if !matchesListFilters(transfer, opts) {
			continue
		}
		stats.Total++
		switch transfer.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if transfer.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = transfer.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (transfer.UpdatedAt != 0 && transfer.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = transfer.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneTransfer(transfer *Transfer) *Transfer {
	clone := *transfer
	if transfer.Result != nil {
		resultCopy := *transfer.Result
		clone.Result = &resultCopy
	}
	clone.Intent = cloneIntent(transfer.Intent)
	return &clone
}

func matchesListFilters(transfer *Transfer, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if transfer.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.UpdatedGTE > 0 && transfer.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && transfer.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.HasResult != nil && transferHasResult(transfer) != *opts.HasResult {
		return false
	}
	if opts.Query != "" && !matchesQuery(transfer, opts.Query) {
		return false
	}
	return true
}

func transferHasResult(transfer *Transfer) bool {
	if transfer == nil || transfer.Result == nil {
		return false
	}
	result := transfer.Result
	return result.TransferTxHash != "" || result.ApprovalTxHash != "" || result.SourceSymbol != "" || result.TargetSymbol != ""
}

func matchesQuery(transfer *Transfer, query string) bool {
	needle := strings.ToLower(query)
	haystack := []string{transfer.ID, transfer.Message, transfer.RecipientAddress, transfer.LastError}
	if transfer.Result != nil {
		haystack = append(haystack,
			transfer.Result.TransferTxHash,
			transfer.Result.ApprovalTxHash,
			transfer.Result.SourceSymbol,
			transfer.Result.TargetSymbol,
		)
	}
	for _, field := range haystack {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
