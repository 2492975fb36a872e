package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tpsl-backtest/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id TEXT PRIMARY KEY,
	note TEXT NOT NULL DEFAULT '',
	symbol TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	datasource TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	params TEXT NOT NULL,
	summary TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol);
`

// Service 负责持久化回测运行记录。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化历史服务，创建所需表结构。
func NewService(ctx context.Context, s *store.Store, logger *zap.Logger) (*Service, error) {
	if s == nil {
		return nil, fmt.Errorf("history: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := s.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("history: 初始化表失败: %w", err)
	}

	return &Service{db: s.DB(), logger: logger}, nil
}

// Record 写入一次回测记录。
func (s *Service) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("history: run_id 不能为空")
	}

	params, err := marshalPayload(run.Params)
	if err != nil {
		return fmt.Errorf("history: 序列化参数失败: %w", err)
	}
	summary, err := marshalPayload(run.Summary)
	if err != nil {
		return fmt.Errorf("history: 序列化结果失败: %w", err)
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backtest_runs (id, note, symbol, start_date, end_date, datasource, status, params, summary, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Note, run.Symbol, run.StartDate, run.EndDate, run.Datasource,
		string(run.Status), params, summary, run.Error, run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: 写入记录失败: %w", err)
	}

	s.logger.Debug("回测记录已保存", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
	return nil
}

// ListRuns 返回最近的回测记录，symbol 为空时不过滤。
func (s *Service) ListRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, note, symbol, start_date, end_date, datasource, status, params, summary, error, created_at FROM backtest_runs`
	args := make([]interface{}, 0, 2)
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: 查询记录失败: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: 读取记录失败: %w", err)
	}

	return runs, nil
}

// Get 按 run_id 查询单条记录。
func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, note, symbol, start_date, end_date, datasource, status, params, summary, error, created_at FROM backtest_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		status  string
		params  string
		summary string
		created string
	)
	err := row.Scan(&run.ID, &run.Note, &run.Symbol, &run.StartDate, &run.EndDate, &run.Datasource,
		&status, &params, &summary, &run.Error, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("history: 解析记录失败: %w", err)
	}

	run.Status = Status(status)
	run.Params = json.RawMessage(params)
	run.Summary = json.RawMessage(summary)
	if ts, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
		run.CreatedAt = ts
	}
	return run, nil
}

func marshalPayload(v interface{}) (string, error) {
	if v == nil {
		return "null", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
