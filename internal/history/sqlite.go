package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder SQLite 历史存储
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder 创建 SQLite 历史存储
func NewSQLiteRecorder(dsn string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}

	return r, nil
}

// initSchema 初始化表结构
func (r *SQLiteRecorder) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL,
		trace_id TEXT,
		raw_text TEXT NOT NULL,
		intent TEXT NOT NULL,
		params TEXT,
		success INTEGER NOT NULL,
		message TEXT,
		duration_ms INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_account ON command_history(account, created_at);
	CREATE INDEX IF NOT EXISTS idx_history_created_at ON command_history(created_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Record 写入一条历史记录
func (r *SQLiteRecorder) Record(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO command_history (account, trace_id, raw_text, intent, params, success, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.Account,
		entry.TraceID,
		entry.RawText,
		entry.Intent,
		entry.Params,
		entry.Success,
		entry.Message,
		entry.Duration,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("写入历史记录失败: %w", err)
	}
	return nil
}

// List 按时间倒序返回某账户的历史记录
func (r *SQLiteRecorder) List(ctx context.Context, account string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account, trace_id, raw_text, intent, params, success, message, duration_ms, created_at
		FROM command_history
		WHERE account = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, account, limit)
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Account, &e.TraceID, &e.RawText, &e.Intent,
			&e.Params, &e.Success, &e.Message, &e.Duration, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取历史记录失败: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Prune 清理给定时间之前的历史记录，返回删除条数
func (r *SQLiteRecorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM command_history WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("清理历史记录失败: %w", err)
	}
	return result.RowsAffected()
}

// Close 关闭数据库连接
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
