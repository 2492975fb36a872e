package datafeed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"tpsl-backtest/internal/backtest"
)

// Source 表示本地行情数据格式选择。
type Source string

const (
	SourceAuto Source = "auto"
	SourceCSV  Source = "csv"
	SourceJSON Source = "json"
)

// ParseSource 解析数据源选择，空字符串视为 auto。
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceAuto:
		return SourceAuto, nil
	case SourceCSV:
		return SourceCSV, nil
	case SourceJSON:
		return SourceJSON, nil
	default:
		return "", fmt.Errorf("%w: 未知 datasource %q", backtest.ErrConfiguration, s)
	}
}

// Request 为一次行情加载请求。
type Request struct {
	Symbol    string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Source    string
}

// Range 为解析后的回测区间。
type Range struct {
	Symbol string
	Start  time.Time
	End    time.Time
	Source Source
}

// Resolve 校验请求参数：6 位数字代码、YYYY-MM-DD 日期且 start < end、已知数据源。
func (r Request) Resolve() (Range, error) {
	var err error

	symbol, symErr := NormalizeSymbol(r.Symbol)
	err = multierr.Append(err, symErr)

	start, startErr := parseDate(r.StartDate, "start_date")
	err = multierr.Append(err, startErr)
	end, endErr := parseDate(r.EndDate, "end_date")
	err = multierr.Append(err, endErr)
	if startErr == nil && endErr == nil && !start.Before(end) {
		err = multierr.Append(err, fmt.Errorf("start_date 必须小于 end_date，收到：%s ~ %s", r.StartDate, r.EndDate))
	}

	source, srcErr := ParseSource(r.Source)
	if srcErr != nil {
		err = multierr.Append(err, fmt.Errorf("未知 datasource %q", r.Source))
	}

	if err != nil {
		return Range{}, fmt.Errorf("%w: %w", backtest.ErrConfiguration, err)
	}

	return Range{Symbol: symbol, Start: start, End: end, Source: source}, nil
}

// NormalizeSymbol 校验A股代码，必须为 6 位数字。
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.TrimSpace(symbol)
	if len(s) != 6 {
		return "", fmt.Errorf("symbol 必须为 6 位数字，收到：%q", symbol)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("symbol 必须为 6 位数字，收到：%q", symbol)
		}
	}
	return s, nil
}

func parseDate(value, field string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, errors.New(field + " 不能为空")
	}
	ts, err := time.Parse(backtest.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s 日期格式必须为 YYYY-MM-DD，收到：%q", field, value)
	}
	return ts, nil
}
