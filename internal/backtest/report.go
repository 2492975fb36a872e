package backtest

import "time"

// Parameters 为报告中记录的实际回测参数。
type Parameters struct {
	TakeProfit  float64   `json:"take_profit"`
	StopLoss    float64   `json:"stop_loss"`
	MaxHoldDays int       `json:"max_hold_days"`
	InitialCash float64   `json:"initial_cash"`
	Commission  float64   `json:"commission"`
	LotSize     int       `json:"lot_size"`
	FillModel   FillModel `json:"fill_model"`
	EntryRule   string    `json:"entry_rule"`
	SingleTrade bool      `json:"single_trade"`
}

// Report 为一次回测的最终产物，交给外部转发或落盘。
// 字段集合保持稳定，不包含生成时间等随运行变化的数据。
type Report struct {
	Symbol      string        `json:"symbol"`
	StartDate   string        `json:"start_date"`
	EndDate     string        `json:"end_date"`
	Parameters  Parameters    `json:"parameters"`
	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Summary     Summary       `json:"summary"`
}

// BuildReport 组装报告，不做任何 I/O。
func BuildReport(symbol string, start, end time.Time, params Parameters, ledger *Ledger, curve []EquityPoint, summary Summary) Report {
	trades := []Trade{}
	if ledger != nil {
		trades = append(trades, ledger.Trades()...)
	}
	return Report{
		Symbol:      symbol,
		StartDate:   start.Format(DateLayout),
		EndDate:     end.Format(DateLayout),
		Parameters:  params,
		Trades:      trades,
		EquityCurve: append([]EquityPoint{}, curve...),
		Summary:     summary,
	}
}
