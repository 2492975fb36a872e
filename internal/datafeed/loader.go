package datafeed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"tpsl-backtest/internal/backtest"
)

// Result 为加载后的行情及实际使用的数据源。
type Result struct {
	Series     backtest.PriceSeries
	Range      Range
	SourceUsed Source
}

// Loader 从本地目录按 <symbol>.csv / <symbol>.json 读取日线。
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader 创建本地行情加载器。
func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = "."
	}
	return &Loader{dir: dir, logger: logger}
}

// Load 校验请求并返回区间内按日期排序的行情。
// auto 模式下 csv 优先，失败或为空时回退到 json。
func (l *Loader) Load(ctx context.Context, req Request) (Result, error) {
	rng, err := req.Resolve()
	if err != nil {
		return Result{}, err
	}

	sources := []Source{rng.Source}
	if rng.Source == SourceAuto {
		sources = []Source{SourceCSV, SourceJSON}
	}

	var lastErr error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		bars, err := l.read(src, rng.Symbol)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && rng.Source == SourceAuto {
				continue
			}
			l.logger.Warn("读取行情失败", zap.String("source", string(src)), zap.String("symbol", rng.Symbol), zap.Error(err))
			lastErr = err
			continue
		}

		bars = inRange(bars, rng)
		if len(bars) == 0 {
			continue
		}

		series, err := normalize(rng.Symbol, bars)
		if err != nil {
			return Result{}, err
		}

		l.logger.Info("行情加载完成",
			zap.String("symbol", rng.Symbol),
			zap.String("source", string(src)),
			zap.Int("bars", series.Len()),
		)
		return Result{Series: series, Range: rng, SourceUsed: src}, nil
	}

	if lastErr != nil {
		return Result{}, fmt.Errorf("%w: 数据读取失败（datasource=%s）: %w", backtest.ErrData, rng.Source, lastErr)
	}
	return Result{}, fmt.Errorf("%w: %s 在 %s ~ %s 无行情数据（datasource=%s）", backtest.ErrData,
		rng.Symbol, rng.Start.Format(backtest.DateLayout), rng.End.Format(backtest.DateLayout), rng.Source)
}

func (l *Loader) read(src Source, symbol string) ([]backtest.Bar, error) {
	path := filepath.Join(l.dir, symbol+"."+string(src))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch src {
	case SourceCSV:
		return parseCSV(f)
	case SourceJSON:
		return parseJSON(f)
	default:
		return nil, fmt.Errorf("不支持的数据源 %s", src)
	}
}

func inRange(bars []backtest.Bar, rng Range) []backtest.Bar {
	out := make([]backtest.Bar, 0, len(bars))
	for _, bar := range bars {
		if bar.Date.Before(rng.Start) || bar.Date.After(rng.End) {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// normalize 按日期排序；重复日期视为数据错误，不做合并。
func normalize(symbol string, bars []backtest.Bar) (backtest.PriceSeries, error) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	for i := 1; i < len(bars); i++ {
		if bars[i].Date.Equal(bars[i-1].Date) {
			return backtest.PriceSeries{}, fmt.Errorf("%w: %s 存在重复日期 %s", backtest.ErrData,
				symbol, bars[i].Date.Format(backtest.DateLayout))
		}
	}
	return backtest.NewPriceSeries(symbol, bars)
}
