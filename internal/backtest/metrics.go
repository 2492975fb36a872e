package backtest

import (
	"math"
	"time"
)

// TradingDaysPerYear 为年化换算使用的交易日数。
const TradingDaysPerYear = 252

// EquityPoint 为某日收盘后的账户权益。
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// Summary 记录回测绩效指标。Valid 为 false 表示权益曲线为空，其余字段无意义。
type Summary struct {
	Valid            bool               `json:"valid"`
	InitialCash      float64            `json:"initial_cash"`
	FinalEquity      float64            `json:"final_equity"`
	TotalReturn      float64            `json:"total_return"`
	LedgerReturn     float64            `json:"ledger_return"`
	MaxDrawdown      float64            `json:"max_drawdown"`
	TradeCount       int                `json:"trade_count"`
	WinCount         int                `json:"win_count"`
	WinRate          float64            `json:"win_rate"`
	AverageReturn    float64            `json:"average_return"`
	BestReturn       float64            `json:"best_return"`
	WorstReturn      float64            `json:"worst_return"`
	AverageDaysHeld  float64            `json:"average_days_held"`
	ExposureRatio    float64            `json:"exposure_ratio"`
	AnnualizedReturn float64            `json:"annualized_return"`
	SharpeRatio      float64            `json:"sharpe_ratio"`
	ExitReasons      map[ExitReason]int `json:"exit_reasons"`
}

// Summarize 根据账本与权益曲线计算绩效，结果只依赖输入。
func Summarize(ledger *Ledger, curve []EquityPoint, initialCash float64) Summary {
	if len(curve) == 0 {
		return Summary{InitialCash: initialCash, ExitReasons: map[ExitReason]int{}}
	}
	if ledger == nil {
		ledger = NewLedger()
	}

	equity := make([]float64, len(curve))
	for i, p := range curve {
		equity[i] = p.Equity
	}
	final := equity[len(equity)-1]

	totalReturn := 0.0
	if initialCash > 0 {
		totalReturn = final/initialCash - 1
	}

	summary := Summary{
		Valid:         true,
		InitialCash:   initialCash,
		FinalEquity:   final,
		TotalReturn:   totalReturn,
		LedgerReturn:  ledger.TotalReturn(),
		MaxDrawdown:   computeDrawdown(equity),
		TradeCount:    ledger.Count(),
		WinCount:      ledger.Wins(),
		WinRate:       ledger.WinRate(),
		AverageReturn: ledger.AverageReturn(),
		ExitReasons:   map[ExitReason]int{},
	}

	trades := ledger.Trades()
	heldDays := 0
	for i, t := range trades {
		if i == 0 || t.ReturnPct > summary.BestReturn {
			summary.BestReturn = t.ReturnPct
		}
		if i == 0 || t.ReturnPct < summary.WorstReturn {
			summary.WorstReturn = t.ReturnPct
		}
		heldDays += t.DaysHeld
		summary.ExitReasons[t.ExitReason]++
	}
	if len(trades) > 0 {
		summary.AverageDaysHeld = float64(heldDays) / float64(len(trades))
	}
	summary.ExposureRatio = float64(heldDays) / float64(len(curve))

	returns := dailyReturns(initialCash, equity)
	summary.AnnualizedReturn = annualize(totalReturn, len(curve))
	summary.SharpeRatio = computeSharpe(returns)

	return summary
}

// computeDrawdown 返回权益曲线最大回撤，以负数表示。
func computeDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func dailyReturns(initial float64, equity []float64) []float64 {
	returns := make([]float64, 0, len(equity))
	prev := initial
	for _, v := range equity {
		if prev > 0 {
			returns = append(returns, v/prev-1)
		}
		prev = v
	}
	return returns
}

func annualize(totalReturn float64, days int) float64 {
	if days <= 0 || totalReturn <= -1 {
		return 0
	}
	return math.Pow(1+totalReturn, float64(TradingDaysPerYear)/float64(days)) - 1
}

func computeSharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	// 日线收益，按每年 252 个交易日年化
	return (mean / std) * math.Sqrt(TradingDaysPerYear)
}
