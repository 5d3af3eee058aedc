package transfer

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/intent"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 记录汇款状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS transfer_states (
        id VARCHAR(64) PRIMARY KEY,
        message TEXT NOT NULL,
        intent TEXT,
        recipient_address VARCHAR(64) DEFAULT '',
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        result_transfer_tx VARCHAR(66) DEFAULT '',
        result_approval_tx VARCHAR(66) DEFAULT '',
        result_source_symbol VARCHAR(16) DEFAULT '',
        result_target_symbol VARCHAR(16) DEFAULT '',
        result_amount_units VARCHAR(96) DEFAULT '',
        result_min_target_units VARCHAR(96) DEFAULT '',
        result_quote_target_units VARCHAR(96) DEFAULT '',
        result_quote_fee_units VARCHAR(96) DEFAULT '',
        result_quote_rate VARCHAR(96) DEFAULT '',
        result_chain_id VARCHAR(32) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_transfer_status (status),
        INDEX idx_transfer_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 transfer_states 表失败")
	}
	return nil
}

// Create 插入新的汇款记录。
func (s *MySQLStore) Create(ctx context.Context, transfer *Transfer) error {
	if transfer == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "transfer 不能为空")
	}
	if strings.TrimSpace(transfer.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "汇款 ID 不能为空")
	}

	now := time.Now().Unix()
	transfer.CreatedAt = now
	transfer.UpdatedAt = now

	intentValue, err := marshalIntent(transfer.Intent)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码汇款 intent 失败")
	}

	const stmt = `INSERT INTO transfer_states
        (id, message, intent, recipient_address, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		transfer.ID,
		transfer.Message,
		intentValue,
		transfer.RecipientAddress,
		transfer.Status,
		transfer.Attempts,
		transfer.MaxRetries,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrTransferConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入汇款失败")
	}
	return nil
}

const selectColumns = `id, message, intent, recipient_address, status, attempts, max_retries, last_error, error_code,
        result_transfer_tx, result_approval_tx, result_source_symbol, result_target_symbol,
        result_amount_units, result_min_target_units, result_quote_target_units, result_quote_fee_units,
        result_quote_rate, result_chain_id, created_at, updated_at`

// Get 查询指定汇款。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Transfer, error) {
	stmt := `SELECT ` + selectColumns + ` FROM transfer_states WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	transfer, err := scanTransfer(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询汇款失败")
	}
	return transfer, nil
}

// Claim 将汇款标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Transfer, error) {
	const updateStmt = `UPDATE transfer_states SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新汇款状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		transfer, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch transfer.Status {
		case StatusSucceeded:
			return transfer, ErrTransferCompleted
		case StatusRunning:
			return transfer, ErrTransferConflict
		default:
			if transfer.Attempts >= transfer.MaxRetries {
				return transfer, ErrTransferExhausted
			}
			return transfer, ErrTransferConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将汇款标记为成功并写入链上凭据。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, receipt Receipt) error {
	const stmt = `UPDATE transfer_states SET status = ?, result_transfer_tx = ?, result_approval_tx = ?,
        result_source_symbol = ?, result_target_symbol = ?, result_amount_units = ?, result_min_target_units = ?,
        result_quote_target_units = ?, result_quote_fee_units = ?, result_quote_rate = ?,
        result_chain_id = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		receipt.TransferTxHash,
		receipt.ApprovalTxHash,
		receipt.SourceSymbol,
		receipt.TargetSymbol,
		receipt.AmountUnits,
		receipt.MinTargetUnits,
		receipt.QuoteTargetUnits,
		receipt.QuoteFeeUnits,
		receipt.QuoteRate,
		receipt.ChainID,
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记汇款成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// MarkFailed 将汇款标记为失败，并在必要时终止重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE transfer_states SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记汇款失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// List 返回符合过滤条件的汇款。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Transfer, error) {
	opts.applyDefaults()

	query := `SELECT ` + selectColumns + ` FROM transfer_states`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询汇款列表失败")
	}
	defer rows.Close()

	transfers := make([]*Transfer, 0, opts.Limit)
	for rows.Next() {
		transfer, err := scanTransfer(rows.Scan)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析汇款记录失败")
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历汇款失败")
	}
	return transfers, nil
}

// Stats 返回符合过滤条件的汇款聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM transfer_states`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats Stats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询汇款统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanTransfer(scan func(dest ...any) error) (*Transfer, error) {
	var transfer Transfer
	var receipt Receipt
	var intentRaw sql.NullString

	if err := scan(
		&transfer.ID,
		&transfer.Message,
		&intentRaw,
		&transfer.RecipientAddress,
		&transfer.Status,
		&transfer.Attempts,
		&transfer.MaxRetries,
		&transfer.LastError,
		&transfer.ErrorCode,
		&receipt.TransferTxHash,
		&receipt.ApprovalTxHash,
		&receipt.SourceSymbol,
		&receipt.TargetSymbol,
		&receipt.AmountUnits,
		&receipt.MinTargetUnits,
		&receipt.QuoteTargetUnits,
		&receipt.QuoteFeeUnits,
		&receipt.QuoteRate,
		&receipt.ChainID,
		&transfer.CreatedAt,
		&transfer.UpdatedAt,
	); err != nil {
		return nil, err
	}

	decoded, err := unmarshalIntent(intentRaw)
	if err != nil {
		return nil, err
	}
	transfer.Intent = decoded

	if receipt.TransferTxHash != "" || receipt.ApprovalTxHash != "" || receipt.SourceSymbol != "" || receipt.TargetSymbol != "" {
		transfer.Result = &receipt
	}
	return &transfer, nil
}

func marshalIntent(in *intent.Intent) (sql.NullString, error) {
	if in == nil {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(in)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalIntent(raw sql.NullString) (*intent.Intent, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var decoded intent.Intent
	if err := json.Unmarshal([]byte(raw.String), &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			conditions = append(conditions, "(result_transfer_tx <> '' OR result_approval_tx <> '')")
		} else {
			conditions = append(conditions, "(result_transfer_tx = '' AND result_approval_tx = '')")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR message LIKE ? OR recipient_address LIKE ? OR last_error LIKE ? OR result_transfer_tx LIKE ? OR result_approval_tx LIKE ? OR result_source_symbol LIKE ? OR result_target_symbol LIKE ?)")
		args = append(args,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
		)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
