package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Params 定义一次回测的全部输入参数。
type Params struct {
	Symbol      string     // 标的代码
	StartDate   time.Time  // 回测开始日期（含）
	EndDate     time.Time  // 回测结束日期（含）
	Policy      ExitPolicy // 退出策略
	InitialCash float64    // 初始资金
	Fill        FillModel  // 入场成交模型
	Commission  float64    // 单边手续费率
	LotSize     int        // 每手股数，0 表示允许零股
	SingleTrade bool       // 整个区间最多只做一笔交易
	Entry       EntryRule  // 入场规则，为空时空仓即入场
}

// Validate 校验参数，所有问题一并返回。
func (p Params) Validate() error {
	var err error
	if p.Symbol == "" {
		err = multierr.Append(err, errors.New("symbol 不能为空"))
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		err = multierr.Append(err, errors.New("必须提供 start_date 与 end_date"))
	} else if !p.StartDate.Before(p.EndDate) {
		err = multierr.Append(err, errors.New("start_date 必须小于 end_date"))
	}
	if !p.Policy.valid() {
		err = multierr.Append(err, errors.New("退出策略未初始化，请使用 NewExitPolicy"))
	}
	if math.IsNaN(p.InitialCash) || math.IsInf(p.InitialCash, 0) || p.InitialCash <= 0 {
		err = multierr.Append(err, errors.New("cash 必须 > 0"))
	}
	if p.Fill != FillClose && p.Fill != FillNextOpen {
		err = multierr.Append(err, fmt.Errorf("未知成交模型 %q", p.Fill))
	}
	if math.IsNaN(p.Commission) || p.Commission < 0 || p.Commission >= 1 {
		err = multierr.Append(err, errors.New("commission 必须位于[0,1)"))
	}
	if p.LotSize < 0 {
		err = multierr.Append(err, errors.New("lot_size 不能为负"))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

func (p Params) normalize() Params {
	out := p
	if out.Fill == "" {
		out.Fill = FillClose
	}
	if out.Entry == nil {
		out.Entry = AlwaysEnter
	}
	return out
}

// Parameters 返回写入报告的参数快照。
func (p Params) Parameters() Parameters {
	p = p.normalize()
	return Parameters{
		TakeProfit:  p.Policy.TakeProfit(),
		StopLoss:    p.Policy.StopLoss(),
		MaxHoldDays: p.Policy.MaxHoldDays(),
		InitialCash: p.InitialCash,
		Commission:  p.Commission,
		LotSize:     p.LotSize,
		FillModel:   p.Fill,
		EntryRule:   p.Entry.Name(),
		SingleTrade: p.SingleTrade,
	}
}

// Engine 逐根K线驱动状态机并生成报告。构造后只读，可被多个 goroutine 同时使用。
type Engine struct {
	params Params
	logger *zap.Logger
}

// NewEngine 构建回测引擎，参数非法时返回 ErrConfiguration。
func NewEngine(params Params, logger *zap.Logger) (*Engine, error) {
	params = params.normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		params: params,
		logger: logger.With(zap.String("symbol", params.Symbol)),
	}, nil
}

// Params 返回引擎参数。
func (e *Engine) Params() Params {
	return e.params
}

// Run 执行完整回测。任何错误都不会产生部分报告。
func (e *Engine) Run(series PriceSeries) (Report, error) {
	if series.Len() == 0 {
		return Report{}, fmt.Errorf("%w: %s 无行情数据", ErrData, e.params.Symbol)
	}
	if series.Symbol() != e.params.Symbol {
		return Report{}, fmt.Errorf("%w: 行情标的 %s 与参数 %s 不一致", ErrData, series.Symbol(), e.params.Symbol)
	}
	if series.FirstDate().Before(e.params.StartDate) || series.LastDate().After(e.params.EndDate) {
		return Report{}, fmt.Errorf("%w: 行情区间 %s ~ %s 超出回测区间 %s ~ %s", ErrData,
			series.FirstDate().Format(DateLayout), series.LastDate().Format(DateLayout),
			e.params.StartDate.Format(DateLayout), e.params.EndDate.Format(DateLayout))
	}

	bars := series.Bars()
	signal, err := e.params.Entry.Prepare(bars)
	if err != nil {
		return Report{}, fmt.Errorf("%w: 初始化入场规则 %s 失败: %w", ErrConfiguration, e.params.Entry.Name(), err)
	}

	ledger := NewLedger()
	machine := newPositionMachine(e.params, signal, ledger)
	curve := make([]EquityPoint, 0, len(bars))

	for i, bar := range bars {
		before := machine.State()
		equity, trade, err := machine.Step(i, bar, i == len(bars)-1)
		if err != nil {
			return Report{}, err
		}
		if before == StateFlat && machine.State() == StateHolding {
			e.logger.Debug("开仓", zap.Time("date", bar.Date), zap.Float64("equity", equity))
		}
		if trade != nil {
			e.logger.Debug("平仓",
				zap.Time("entry_date", trade.EntryDate),
				zap.Time("exit_date", trade.ExitDate),
				zap.String("reason", string(trade.ExitReason)),
				zap.Float64("return_pct", trade.ReturnPct),
			)
		}
		curve = append(curve, EquityPoint{Date: bar.Date, Equity: equity})
	}

	summary := Summarize(ledger, curve, e.params.InitialCash)
	report := BuildReport(e.params.Symbol, e.params.StartDate, e.params.EndDate, e.params.Parameters(), ledger, curve, summary)

	e.logger.Info("回测完成",
		zap.Int("bars", len(bars)),
		zap.Int("trades", summary.TradeCount),
		zap.Float64("total_return", summary.TotalReturn),
		zap.Float64("max_drawdown", summary.MaxDrawdown),
	)

	return report, nil
}

// Run 为单次回测的便捷入口。
func Run(series PriceSeries, params Params) (Report, error) {
	engine, err := NewEngine(params, nil)
	if err != nil {
		return Report{}, err
	}
	return engine.Run(series)
}
