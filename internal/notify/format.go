package notify

import (
	"errors"
	"fmt"
	"strings"

	"tpsl-backtest/internal/backtest"
)

// Meta 为附加在通知末尾的运行信息。
type Meta struct {
	RunID  string
	Note   string
	RunURL string
}

func (m Meta) suffix() string {
	parts := make([]string, 0, 3)
	if m.RunID != "" {
		parts = append(parts, "RunID="+m.RunID)
	}
	if m.Note != "" {
		parts = append(parts, "Note="+m.Note)
	}
	if m.RunURL != "" {
		parts = append(parts, "URL="+m.RunURL)
	}
	if len(parts) == 0 {
		return ""
	}
	return " | " + strings.Join(parts, " ")
}

// FormatSummary 生成一条人可读的回测摘要。
func FormatSummary(report backtest.Report, datasource string, meta Meta) string {
	p := report.Parameters
	s := report.Summary

	var b strings.Builder
	b.WriteString("回测完成\n")
	fmt.Fprintf(&b, "标的：%s\n", report.Symbol)
	fmt.Fprintf(&b, "区间：%s ~ %s\n", report.StartDate, report.EndDate)
	fmt.Fprintf(&b, "参数：TP=%s SL=%s Hold=%d Cash=%.0f\n", pct(p.TakeProfit), pct(p.StopLoss), p.MaxHoldDays, p.InitialCash)
	if p.EntryRule != "" && p.EntryRule != "always" {
		fmt.Fprintf(&b, "入场：%s\n", p.EntryRule)
	}
	fmt.Fprintf(&b, "数据源：%s\n", datasource)
	fmt.Fprintf(&b, "结果：总收益=%s 最大回撤=%s 胜率=%s 交易次数=%d 资金：%.0f -> %.0f",
		pct(s.TotalReturn), pct(s.MaxDrawdown), pct(s.WinRate), s.TradeCount, s.InitialCash, s.FinalEquity)
	b.WriteString(meta.suffix())
	return b.String()
}

// FormatFailure 生成失败通知，按错误类别给出前缀。
func FormatFailure(err error, meta Meta) string {
	kind := "运行错误"
	switch {
	case errors.Is(err, backtest.ErrConfiguration):
		kind = "参数错误"
	case errors.Is(err, backtest.ErrData):
		kind = "数据错误"
	case errors.Is(err, backtest.ErrInvariant):
		kind = "内部错误"
	}
	return fmt.Sprintf("回测失败：%s: %v%s", kind, err, meta.suffix())
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
