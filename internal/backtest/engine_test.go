package backtest

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func makeBars(closes ...float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Date:   testStart.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func makeSeries(t *testing.T, closes ...float64) PriceSeries {
	t.Helper()
	series, err := NewPriceSeries("600519", makeBars(closes...))
	if err != nil {
		t.Fatalf("NewPriceSeries returned error: %v", err)
	}
	return series
}

func makeParams(t *testing.T, tp, sl float64, maxHold int) Params {
	t.Helper()
	policy, err := NewExitPolicy(tp, sl, maxHold)
	if err != nil {
		t.Fatalf("NewExitPolicy returned error: %v", err)
	}
	return Params{
		Symbol:      "600519",
		StartDate:   testStart,
		EndDate:     testStart.AddDate(1, 0, 0),
		Policy:      policy,
		InitialCash: 100000,
	}
}

// wavySeries 生成确定性的振荡价格序列。
func wavySeries(t *testing.T, n int) PriceSeries {
	t.Helper()
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 8*math.Sin(float64(i)/3) + 3*math.Cos(float64(i)/1.7) + float64(i)*0.05
	}
	return makeSeries(t, closes...)
}

func TestEngineRun_TakeProfitOnSecondBar(t *testing.T) {
	series := makeSeries(t, 100, 103, 97, 101)
	params := makeParams(t, 0.03, -0.05, 10)

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) == 0 {
		t.Fatalf("expected at least one trade")
	}

	first := report.Trades[0]
	if first.ExitReason != ExitTakeProfit {
		t.Errorf("expected take_profit exit, got %s", first.ExitReason)
	}
	if first.EntryPrice != 100 || first.ExitPrice != 103 {
		t.Errorf("unexpected fill prices: entry=%f exit=%f", first.EntryPrice, first.ExitPrice)
	}
	if !first.ExitDate.Equal(testStart.AddDate(0, 0, 1)) {
		t.Errorf("expected exit on second bar, got %s", first.ExitDate)
	}
	if math.Abs(first.ReturnPct-0.03) > 1e-12 {
		t.Errorf("expected return 0.03, got %f", first.ReturnPct)
	}
	if first.DaysHeld != 1 {
		t.Errorf("expected days_held=1, got %d", first.DaysHeld)
	}

	// 平仓后下一根K线重新入场，97 -> 101 再次触发止盈
	if len(report.Trades) != 2 {
		t.Fatalf("expected 2 sequential trades, got %d", len(report.Trades))
	}
	second := report.Trades[1]
	if second.EntryPrice != 97 || second.ExitReason != ExitTakeProfit {
		t.Errorf("unexpected second trade: %+v", second)
	}
}

func TestEngineRun_MaxHoldScenario(t *testing.T) {
	series := makeSeries(t, 100, 103, 97, 101)
	params := makeParams(t, 0.05, -0.05, 3)

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(report.Trades))
	}

	trade := report.Trades[0]
	if trade.ExitReason != ExitMaxHold {
		t.Errorf("expected max_hold exit, got %s", trade.ExitReason)
	}
	if trade.DaysHeld != 3 {
		t.Errorf("expected days_held=3, got %d", trade.DaysHeld)
	}
	if math.Abs(trade.ReturnPct-0.01) > 1e-12 {
		t.Errorf("expected return 0.01, got %f", trade.ReturnPct)
	}
	if trade.ExitPrice != 101 {
		t.Errorf("expected exit at 101, got %f", trade.ExitPrice)
	}
}

func TestEngineRun_StopLoss(t *testing.T) {
	series := makeSeries(t, 100, 98, 94, 95)
	params := makeParams(t, 0.10, -0.05, 10)

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) == 0 {
		t.Fatalf("expected a trade")
	}
	trade := report.Trades[0]
	if trade.ExitReason != ExitStopLoss {
		t.Fatalf("expected stop_loss exit, got %s", trade.ExitReason)
	}
	if trade.ReturnPct > params.Policy.StopLoss() {
		t.Errorf("stop_loss exit with return %f above threshold", trade.ReturnPct)
	}
	if trade.ExitPrice != 94 {
		t.Errorf("expected exit at 94, got %f", trade.ExitPrice)
	}
}

func TestEngineRun_EndOfData(t *testing.T) {
	series := makeSeries(t, 100, 101, 102)
	params := makeParams(t, 0.50, -0.50, 30)

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected a single trade, got %d", len(report.Trades))
	}
	trade := report.Trades[0]
	if trade.ExitReason != ExitEndOfData {
		t.Errorf("expected end_of_data exit, got %s", trade.ExitReason)
	}
	if !trade.ExitDate.Equal(series.LastDate()) || trade.ExitPrice != 102 {
		t.Errorf("expected exit at last close, got %s @ %f", trade.ExitDate, trade.ExitPrice)
	}
}

func TestEngineRun_MaxHoldOneDay(t *testing.T) {
	series := makeSeries(t, 100, 101, 102, 103, 104, 105)
	params := makeParams(t, 0.50, -0.50, 1)

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) == 0 {
		t.Fatalf("expected trades")
	}
	for i, trade := range report.Trades {
		if trade.DaysHeld != 1 {
			t.Errorf("trade %d: expected days_held=1, got %d", i, trade.DaysHeld)
		}
		if got := trade.ExitDate.Sub(trade.EntryDate); got != 24*time.Hour {
			t.Errorf("trade %d: expected one bar holding, got %s", i, got)
		}
	}
}

func TestEngineRun_SingleTrade(t *testing.T) {
	series := makeSeries(t, 100, 103, 97, 101)
	params := makeParams(t, 0.03, -0.05, 10)
	params.SingleTrade = true

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected 1 trade with single_trade, got %d", len(report.Trades))
	}
	if !report.Parameters.SingleTrade {
		t.Errorf("expected single_trade recorded in parameters")
	}
}

func TestEngineRun_NextOpenFill(t *testing.T) {
	bars := makeBars(100, 100, 104, 104)
	bars[1].Open = 99
	bars[1].Low = 99
	series, err := NewPriceSeries("600519", bars)
	if err != nil {
		t.Fatalf("NewPriceSeries returned error: %v", err)
	}
	params := makeParams(t, 0.04, -0.05, 10)
	params.Fill = FillNextOpen

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) == 0 {
		t.Fatalf("expected a trade")
	}
	trade := report.Trades[0]
	if !trade.EntryDate.Equal(bars[1].Date) || trade.EntryPrice != 99 {
		t.Errorf("expected fill at second bar open, got %s @ %f", trade.EntryDate, trade.EntryPrice)
	}
	// 99 -> 100 未达止盈，99 -> 104 触发
	if trade.ExitReason != ExitTakeProfit || !trade.ExitDate.Equal(bars[2].Date) {
		t.Errorf("unexpected exit: %s on %s", trade.ExitReason, trade.ExitDate)
	}
	if trade.DaysHeld != 2 {
		t.Errorf("expected days_held=2, got %d", trade.DaysHeld)
	}
	if report.Parameters.FillModel != FillNextOpen {
		t.Errorf("expected fill model recorded, got %s", report.Parameters.FillModel)
	}
}

func TestEngineRun_CommissionAndLotSize(t *testing.T) {
	series := makeSeries(t, 100, 110, 120)
	params := makeParams(t, 0.05, -0.05, 10)
	params.InitialCash = 10050
	params.Commission = 0.001
	params.LotSize = 100

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(report.Trades))
	}
	trade := report.Trades[0]
	if trade.Shares != 100 {
		t.Errorf("expected 100 shares, got %f", trade.Shares)
	}
	wantFee := 100*100*0.001 + 100*110*0.001
	if math.Abs(trade.Commission-wantFee) > 1e-9 {
		t.Errorf("expected commission %f, got %f", wantFee, trade.Commission)
	}
	wantPnL := 100*10 - wantFee
	if math.Abs(trade.PnL-wantPnL) > 1e-9 {
		t.Errorf("expected pnl %f, got %f", wantPnL, trade.PnL)
	}
	if math.Abs(report.Summary.FinalEquity-(params.InitialCash+wantPnL)) > 1e-9 {
		t.Errorf("unexpected final equity %f", report.Summary.FinalEquity)
	}
}

func TestEngineRun_InsufficientCashForLot(t *testing.T) {
	series := makeSeries(t, 100, 110, 120)
	params := makeParams(t, 0.05, -0.05, 10)
	params.InitialCash = 5000
	params.LotSize = 100

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(report.Trades))
	}
	for _, p := range report.EquityCurve {
		if p.Equity != 5000 {
			t.Fatalf("expected flat equity, got %f", p.Equity)
		}
	}
}

func TestEngineRun_CustomEntryRule(t *testing.T) {
	series := makeSeries(t, 100, 101, 102, 103, 104)
	params := makeParams(t, 0.50, -0.50, 1)
	params.Entry = EntryRuleFunc{
		RuleName: "third_bar",
		Fn: func(bars []Bar) (EntrySignal, error) {
			return func(i int) bool { return i == 2 }, nil
		},
	}

	report, err := Run(series, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(report.Trades))
	}
	if report.Trades[0].EntryPrice != 102 {
		t.Errorf("expected entry at 102, got %f", report.Trades[0].EntryPrice)
	}
	if report.Parameters.EntryRule != "third_bar" {
		t.Errorf("expected entry rule name recorded, got %s", report.Parameters.EntryRule)
	}
}

func TestEngineRun_EntryRuleError(t *testing.T) {
	series := makeSeries(t, 100, 101)
	params := makeParams(t, 0.05, -0.05, 3)
	params.Entry = EntryRuleFunc{RuleName: "broken"}

	if _, err := Run(series, params); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestEngineRun_Idempotent(t *testing.T) {
	series := wavySeries(t, 120)
	params := makeParams(t, 0.04, -0.03, 7)

	engine, err := NewEngine(params, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	first, err := engine.Run(series)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	second, err := engine.Run(series)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("reports differ (-first +second):\n%s", diff)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("serialized reports differ")
	}
}

func TestEngineRun_Properties(t *testing.T) {
	series := wavySeries(t, 250)
	policies := []struct {
		tp, sl  float64
		maxHold int
	}{
		{0.03, -0.05, 10},
		{0.02, -0.02, 5},
		{0.10, -0.10, 1},
		{0.50, -0.50, 400},
	}

	for _, pc := range policies {
		params := makeParams(t, pc.tp, pc.sl, pc.maxHold)
		report, err := Run(series, params)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		if len(report.EquityCurve) != series.Len() {
			t.Errorf("expected one equity point per bar, got %d", len(report.EquityCurve))
		}

		var prevExit time.Time
		for i, trade := range report.Trades {
			if trade.EntryDate.Before(params.StartDate) || trade.ExitDate.After(params.EndDate) {
				t.Errorf("trade %d outside range", i)
			}
			if trade.ExitDate.Before(trade.EntryDate) {
				t.Errorf("trade %d exits before entry", i)
			}
			if i > 0 && !trade.EntryDate.After(prevExit) {
				t.Errorf("trade %d overlaps previous trade", i)
			}
			prevExit = trade.ExitDate

			ret := (trade.ExitPrice - trade.EntryPrice) / trade.EntryPrice
			switch trade.ExitReason {
			case ExitTakeProfit:
				if ret < pc.tp {
					t.Errorf("trade %d: take_profit with return %f", i, ret)
				}
			case ExitStopLoss:
				if ret > pc.sl {
					t.Errorf("trade %d: stop_loss with return %f", i, ret)
				}
			case ExitMaxHold:
				if trade.DaysHeld != pc.maxHold {
					t.Errorf("trade %d: max_hold with days_held %d", i, trade.DaysHeld)
				}
			case ExitEndOfData:
				if !trade.ExitDate.Equal(series.LastDate()) {
					t.Errorf("trade %d: end_of_data before last bar", i)
				}
			}
		}

		s := report.Summary
		if math.Abs(s.LedgerReturn-s.TotalReturn) > 1e-9 {
			t.Errorf("ledger return %f != equity return %f", s.LedgerReturn, s.TotalReturn)
		}
		if s.MaxDrawdown > 0 {
			t.Errorf("max drawdown must be non-positive, got %f", s.MaxDrawdown)
		}
	}
}

func TestEngineRun_DataErrors(t *testing.T) {
	params := makeParams(t, 0.03, -0.05, 10)

	if _, err := Run(PriceSeries{}, params); !errors.Is(err, ErrData) {
		t.Fatalf("expected ErrData for empty series, got %v", err)
	}

	other, err := NewPriceSeries("000001", makeBars(100, 101))
	if err != nil {
		t.Fatalf("NewPriceSeries returned error: %v", err)
	}
	if _, err := Run(other, params); !errors.Is(err, ErrData) {
		t.Fatalf("expected ErrData for symbol mismatch, got %v", err)
	}

	params.EndDate = testStart
	params.StartDate = testStart.AddDate(0, 0, -10)
	if _, err := Run(makeSeries(t, 100, 101), params); !errors.Is(err, ErrData) {
		t.Fatalf("expected ErrData for bars outside range, got %v", err)
	}
}

func TestNewEngine_ConfigurationErrors(t *testing.T) {
	valid := makeParams(t, 0.03, -0.05, 10)

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero cash", func(p *Params) { p.InitialCash = 0 }},
		{"negative cash", func(p *Params) { p.InitialCash = -1 }},
		{"start after end", func(p *Params) { p.StartDate, p.EndDate = p.EndDate, p.StartDate }},
		{"start equals end", func(p *Params) { p.EndDate = p.StartDate }},
		{"missing range", func(p *Params) { p.StartDate = time.Time{} }},
		{"zero policy", func(p *Params) { p.Policy = ExitPolicy{} }},
		{"empty symbol", func(p *Params) { p.Symbol = "" }},
		{"bad fill", func(p *Params) { p.Fill = "vwap" }},
		{"bad commission", func(p *Params) { p.Commission = -0.1 }},
		{"negative lot", func(p *Params) { p.LotSize = -100 }},
	}

	for _, test := range tests {
		params := valid
		test.mutate(&params)
		if _, err := NewEngine(params, nil); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", test.name, err)
		}
	}
}
