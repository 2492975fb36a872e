package datafeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tpsl-backtest/internal/backtest"
)

// 兼容 tushare / akshare 导出的列名。
var columnAliases = map[string]string{
	"date":       "date",
	"trade_date": "date",
	"日期":         "date",
	"open":       "open",
	"开盘":         "open",
	"high":       "high",
	"最高":         "high",
	"low":        "low",
	"最低":         "low",
	"close":      "close",
	"收盘":         "close",
	"volume":     "volume",
	"成交量":        "volume",
	"vol":        "vol",
}

var requiredColumns = []string{"date", "open", "high", "low", "close"}

// parseCSV 读取带表头的日线 CSV，列顺序不限，多余列忽略。
// tushare 的 vol 列单位为手，按 100 股换算。
func parseCSV(r io.Reader) ([]backtest.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if alias, ok := columnAliases[key]; ok {
			cols[alias] = i
		}
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("数据缺少列: %s", name)
		}
	}

	var bars []backtest.Bar
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 第 %d 行失败: %w", line, err)
		}

		bar, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("解析 CSV 第 %d 行失败: %w", line, err)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func parseRecord(record []string, cols map[string]int) (backtest.Bar, error) {
	field := func(name string) (string, bool) {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[idx]), true
	}

	var bar backtest.Bar
	raw, _ := field("date")
	date, err := parseBarDate(raw)
	if err != nil {
		return bar, err
	}
	bar.Date = date

	prices := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	}
	for _, p := range prices {
		raw, ok := field(p.name)
		if !ok {
			return bar, fmt.Errorf("缺少 %s", p.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bar, fmt.Errorf("%s 不是数字: %q", p.name, raw)
		}
		*p.dst = v
	}

	if raw, ok := field("volume"); ok && raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bar, fmt.Errorf("volume 不是数字: %q", raw)
		}
		bar.Volume = v
	} else if raw, ok := field("vol"); ok && raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bar, fmt.Errorf("vol 不是数字: %q", raw)
		}
		bar.Volume = v * 100
	}

	return bar, nil
}

// parseBarDate 支持 YYYY-MM-DD 与 YYYYMMDD。
func parseBarDate(raw string) (time.Time, error) {
	for _, layout := range []string{backtest.DateLayout, "20060102"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 %q", raw)
}
