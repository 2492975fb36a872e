package indicator

import (
	"fmt"
	"math"
	"strings"

	talib "github.com/markcheno/go-talib"

	"tpsl-backtest/internal/backtest"
)

const (
	RuleAlways      = "always"
	RuleSMACross    = "sma_cross"
	RuleEMATrend    = "ema_trend"
	RuleRSIOversold = "rsi_oversold"
)

// RuleConfig 描述入场规则及其参数。
type RuleConfig struct {
	Name      string
	Period    int
	Threshold float64
}

// NewRule 根据配置创建入场规则。
func NewRule(cfg RuleConfig) (backtest.EntryRule, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch name {
	case "", RuleAlways:
		return backtest.AlwaysEnter, nil
	case RuleSMACross, RuleEMATrend, RuleRSIOversold:
	default:
		return nil, fmt.Errorf("indicator: 未知入场规则 %q", cfg.Name)
	}

	if cfg.Period < 2 {
		return nil, fmt.Errorf("indicator: %s 的 period 必须 >= 2", name)
	}
	if name == RuleRSIOversold && (cfg.Threshold <= 0 || cfg.Threshold >= 100) {
		return nil, fmt.Errorf("indicator: rsi_oversold 的 threshold 必须位于(0,100)")
	}

	return talibRule{name: name, period: cfg.Period, threshold: cfg.Threshold}, nil
}

// talibRule 在每次回测开始时一次性计算指标，信号按下标查表。
type talibRule struct {
	name      string
	period    int
	threshold float64
}

func (r talibRule) Name() string {
	switch r.name {
	case RuleRSIOversold:
		return fmt.Sprintf("%s(%d,%g)", r.name, r.period, r.threshold)
	default:
		return fmt.Sprintf("%s(%d)", r.name, r.period)
	}
}

func (r talibRule) Prepare(bars []backtest.Bar) (backtest.EntrySignal, error) {
	series := NewSeries(bars)
	// 数据不足以完成预热时不产生信号
	if series.Len() <= r.period {
		return func(int) bool { return false }, nil
	}

	closes := series.Close
	switch r.name {
	case RuleSMACross:
		sma := talib.Sma(closes, r.period)
		return func(i int) bool {
			cur, prev := At(sma, i), At(sma, i-1)
			if math.IsNaN(cur) || math.IsNaN(prev) {
				return false
			}
			return closes[i] > cur && closes[i-1] <= prev
		}, nil
	case RuleEMATrend:
		ema := talib.Ema(closes, r.period)
		return func(i int) bool {
			cur := At(ema, i)
			return !math.IsNaN(cur) && closes[i] > cur
		}, nil
	case RuleRSIOversold:
		rsi := talib.Rsi(closes, r.period)
		return func(i int) bool {
			// RSI 需要 period 根K线预热，之前的值无意义
			if i < r.period {
				return false
			}
			return rsi[i] < r.threshold
		}, nil
	default:
		return nil, fmt.Errorf("indicator: 未知入场规则 %q", r.name)
	}
}
