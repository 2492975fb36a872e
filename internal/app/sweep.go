package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tpsl-backtest/internal/backtest"
	"tpsl-backtest/internal/config"
	"tpsl-backtest/internal/history"
)

// SweepResult 为参数扫描中一组离场参数的回测结果。
type SweepResult struct {
	Point   config.SweepPoint
	Summary backtest.Summary
}

// Sweep 在同一段行情上并发回测多组离场参数，结果顺序与 grid 一致。
// 任一组参数非法或回测失败时整体返回错误。
func Sweep(ctx context.Context, series backtest.PriceSeries, base backtest.Params, grid []config.SweepPoint, concurrency int, logger *zap.Logger) ([]SweepResult, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: sweep.grid 不能为空", backtest.ErrConfiguration)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	results := make([]SweepResult, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, point := range grid {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			policy, err := backtest.NewExitPolicy(point.TakeProfit, point.StopLoss, point.MaxHoldDays)
			if err != nil {
				return fmt.Errorf("sweep.grid[%d]: %w", i, err)
			}
			if point.MaxHoldDays > maxHoldLimit {
				return fmt.Errorf("%w: sweep.grid[%d] max_hold_days 必须在 1~%d", backtest.ErrConfiguration, i, maxHoldLimit)
			}

			params := base
			params.Policy = policy
			engine, err := backtest.NewEngine(params, nil)
			if err != nil {
				return err
			}
			report, err := engine.Run(series)
			if err != nil {
				return fmt.Errorf("sweep.grid[%d]: %w", i, err)
			}

			results[i] = SweepResult{Point: point, Summary: report.Summary}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("参数扫描完成", zap.Int("points", len(grid)), zap.Int("concurrency", concurrency))
	return results, nil
}

// Sweep 加载一次行情后按配置的参数网格扫描，每组结果记入历史。
// grid 为空时使用配置中的 sweep.grid。
func (a *App) Sweep(ctx context.Context, req Request, grid []config.SweepPoint) ([]SweepResult, error) {
	if len(grid) == 0 {
		grid = a.cfg.Sweep.Grid
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rng, err := req.dataRequest().Resolve()
	if err != nil {
		return nil, err
	}
	base, err := req.params(rng)
	if err != nil {
		return nil, err
	}
	data, err := a.loader.Load(ctx, req.dataRequest())
	if err != nil {
		return nil, err
	}

	results, err := Sweep(ctx, data.Series, base, grid, a.cfg.Sweep.Concurrency, a.logger.Named("sweep"))
	if err != nil {
		return nil, err
	}

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	for i, res := range results {
		point := req
		point.TakeProfit = res.Point.TakeProfit
		point.StopLoss = res.Point.StopLoss
		point.MaxHoldDays = res.Point.MaxHoldDays
		point.RunID = fmt.Sprintf("%s-%d", req.RunID, i)
		if point.RunNote == "" {
			point.RunNote = "sweep"
		}
		a.record(ctx, point, data.SourceUsed, history.StatusSuccess, res.Summary, nil)
	}

	return results, nil
}
