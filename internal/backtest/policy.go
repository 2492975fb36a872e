package backtest

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// ExitReason 描述平仓原因。
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitMaxHold    ExitReason = "max_hold"
	ExitEndOfData  ExitReason = "end_of_data"
)

// ExitPolicy 为止盈/止损/最长持有天数规则，构造后不可修改。
type ExitPolicy struct {
	takeProfit  float64
	stopLoss    float64
	maxHoldDays int
}

// NewExitPolicy 校验并创建退出策略，所有不合法项一并返回。
func NewExitPolicy(takeProfit, stopLoss float64, maxHoldDays int) (ExitPolicy, error) {
	var err error
	if math.IsNaN(takeProfit) || takeProfit <= 0 {
		err = multierr.Append(err, errors.New("take_profit 必须 > 0"))
	}
	if math.IsNaN(stopLoss) || stopLoss >= 0 {
		err = multierr.Append(err, errors.New("stop_loss 必须 < 0"))
	}
	if maxHoldDays < 1 {
		err = multierr.Append(err, errors.New("max_hold_days 必须 >= 1"))
	}
	if err != nil {
		return ExitPolicy{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return ExitPolicy{
		takeProfit:  takeProfit,
		stopLoss:    stopLoss,
		maxHoldDays: maxHoldDays,
	}, nil
}

// TakeProfit 返回止盈阈值（收益率）。
func (p ExitPolicy) TakeProfit() float64 {
	return p.takeProfit
}

// StopLoss 返回止损阈值（负收益率）。
func (p ExitPolicy) StopLoss() float64 {
	return p.stopLoss
}

// MaxHoldDays 返回最长持有K线数。
func (p ExitPolicy) MaxHoldDays() int {
	return p.maxHoldDays
}

func (p ExitPolicy) valid() bool {
	return p.takeProfit > 0 && p.stopLoss < 0 && p.maxHoldDays >= 1
}

// Check 按固定优先级判断是否平仓：止盈优先于止损，再判断持有天数。
// 只用收盘价评估，同一根K线内高低点的先后顺序不做建模。
func (p ExitPolicy) Check(unrealized float64, daysHeld int) (ExitReason, bool) {
	switch {
	case unrealized >= p.takeProfit:
		return ExitTakeProfit, true
	case unrealized <= p.stopLoss:
		return ExitStopLoss, true
	case daysHeld >= p.maxHoldDays:
		return ExitMaxHold, true
	default:
		return "", false
	}
}

// FillModel 决定入场成交价。
type FillModel string

const (
	// FillClose 在信号K线收盘价成交，从下一根K线开始评估退出。
	FillClose FillModel = "close"
	// FillNextOpen 在信号后一根K线开盘价成交，该K线即为第一个持有日。
	FillNextOpen FillModel = "next_open"
)

// ParseFillModel 解析成交模型，空字符串视为 close。
func ParseFillModel(s string) (FillModel, error) {
	switch FillModel(s) {
	case "", FillClose:
		return FillClose, nil
	case FillNextOpen:
		return FillNextOpen, nil
	default:
		return "", fmt.Errorf("%w: 未知成交模型 %q", ErrConfiguration, s)
	}
}
