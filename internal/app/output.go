package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"tpsl-backtest/internal/backtest"
	"tpsl-backtest/internal/datafeed"
)

// reportFile 为落盘的报告，在引擎报告外附带数据源与运行链接。
type reportFile struct {
	backtest.Report
	DatasourceUsed datafeed.Source `json:"datasource_used"`
	RunURL         string          `json:"run_url,omitempty"`
}

func writeReport(path string, report backtest.Report, source datafeed.Source, runURL string) error {
	data, err := json.MarshalIndent(reportFile{Report: report, DatasourceUsed: source, RunURL: runURL}, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("写入报告 %q 失败: %w", path, err)
	}
	return nil
}

var tradeHeader = []string{
	"entry_date", "entry_price", "exit_date", "exit_price", "shares",
	"days_held", "return_pct", "pnl", "commission", "exit_reason",
}

func writeTradesCSV(path string, trades []backtest.Trade) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建成交明细 %q 失败: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tradeHeader); err != nil {
		return fmt.Errorf("写入成交明细失败: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.EntryDate.Format(backtest.DateLayout),
			formatFloat(t.EntryPrice),
			t.ExitDate.Format(backtest.DateLayout),
			formatFloat(t.ExitPrice),
			formatFloat(t.Shares),
			strconv.Itoa(t.DaysHeld),
			formatFloat(t.ReturnPct),
			formatFloat(t.PnL),
			formatFloat(t.Commission),
			string(t.ExitReason),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("写入成交明细失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("写入成交明细失败: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", dir, err)
	}
	return nil
}
