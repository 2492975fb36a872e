package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tpsl-backtest/internal/config"
	"tpsl-backtest/internal/datafeed"
	"tpsl-backtest/internal/history"
	"tpsl-backtest/internal/notify"
	"tpsl-backtest/internal/store"
)

// ErrHistoryDisabled 表示未配置数据库，无法查询历史。
var ErrHistoryDisabled = errors.New("app: 未启用回测历史")

// App 聚合核心依赖并驱动一次命令行调用。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	loader   *datafeed.Loader
	history  *history.Service
	notifier notify.Notifier
}

// New 创建 App 实例。store 为空时不记录历史。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, s *store.Store) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: cfg 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		loader:   datafeed.NewLoader(cfg.Data.Dir, logger.Named("datafeed")),
		notifier: notify.NewFeishu(cfg.Notify, logger.Named("notify")),
	}

	if s != nil {
		svc, err := history.NewService(ctx, s, logger.Named("history"))
		if err != nil {
			return nil, err
		}
		a.history = svc
	}

	logger.Debug("回测应用已初始化",
		zap.String("environment", cfg.App.Environment),
		zap.String("data_dir", cfg.Data.Dir),
		zap.Bool("history", a.history != nil),
	)
	return a, nil
}

// History 返回最近的回测记录。
func (a *App) History(ctx context.Context, symbol string, limit int) ([]history.Run, error) {
	if a.history == nil {
		return nil, ErrHistoryDisabled
	}
	return a.history.ListRuns(ctx, symbol, limit)
}
