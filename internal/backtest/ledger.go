package backtest

import (
	"fmt"
	"time"
)

// Trade 为一笔已平仓交易，写入账本后不再修改。
type Trade struct {
	EntryDate  time.Time  `json:"entry_date"`
	EntryPrice float64    `json:"entry_price"`
	ExitDate   time.Time  `json:"exit_date"`
	ExitPrice  float64    `json:"exit_price"`
	Shares     float64    `json:"shares"`
	DaysHeld   int        `json:"days_held"`
	ReturnPct  float64    `json:"return_pct"`
	PnL        float64    `json:"pnl"`
	Commission float64    `json:"commission"`
	ExitReason ExitReason `json:"exit_reason"`
}

// Ledger 按平仓顺序记录交易，只允许追加。
type Ledger struct {
	trades []Trade
}

// NewLedger 创建空账本。
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append 追加交易。出场早于入场或与上一笔交易重叠属于内部错误。
func (l *Ledger) Append(trade Trade) error {
	if trade.ExitDate.Before(trade.EntryDate) {
		return fmt.Errorf("%w: 出场日期 %s 早于入场日期 %s", ErrInvariant,
			trade.ExitDate.Format(DateLayout), trade.EntryDate.Format(DateLayout))
	}
	if n := len(l.trades); n > 0 {
		prev := l.trades[n-1]
		if trade.EntryDate.Before(prev.ExitDate) {
			return fmt.Errorf("%w: 入场日期 %s 早于上一笔交易出场日期 %s", ErrInvariant,
				trade.EntryDate.Format(DateLayout), prev.ExitDate.Format(DateLayout))
		}
	}
	l.trades = append(l.trades, trade)
	return nil
}

// Trades 返回交易副本。
func (l *Ledger) Trades() []Trade {
	return append([]Trade(nil), l.trades...)
}

// Count 返回交易笔数。
func (l *Ledger) Count() int {
	return len(l.trades)
}

// Wins 返回盈利交易笔数。
func (l *Ledger) Wins() int {
	wins := 0
	for _, t := range l.trades {
		if t.ReturnPct > 0 {
			wins++
		}
	}
	return wins
}

// WinRate 返回盈利交易占比，无交易时为0。
func (l *Ledger) WinRate() float64 {
	if len(l.trades) == 0 {
		return 0
	}
	return float64(l.Wins()) / float64(len(l.trades))
}

// TotalReturn 返回逐笔复利后的总收益率。
func (l *Ledger) TotalReturn() float64 {
	growth := 1.0
	for _, t := range l.trades {
		growth *= 1 + t.ReturnPct
	}
	return growth - 1
}

// AverageReturn 返回单笔平均收益率。
func (l *Ledger) AverageReturn() float64 {
	if len(l.trades) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range l.trades {
		sum += t.ReturnPct
	}
	return sum / float64(len(l.trades))
}
