package datafeed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"tpsl-backtest/internal/backtest"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
	assert.NoError(t, err)
}

func day(s string) time.Time {
	ts, _ := time.Parse(backtest.DateLayout, s)
	return ts
}

func TestRequestResolve(t *testing.T) {
	rng, err := Request{Symbol: " 600519 ", StartDate: "2024-01-01", EndDate: "2024-02-01"}.Resolve()
	assert.NoError(t, err)
	assert.Equal(t, "600519", rng.Symbol)
	assert.Equal(t, SourceAuto, rng.Source)
	assert.True(t, rng.Start.Equal(day("2024-01-01")))

	tests := []struct {
		name string
		req  Request
	}{
		{"short symbol", Request{Symbol: "6005", StartDate: "2024-01-01", EndDate: "2024-02-01"}},
		{"alpha symbol", Request{Symbol: "60051A", StartDate: "2024-01-01", EndDate: "2024-02-01"}},
		{"bad date", Request{Symbol: "600519", StartDate: "2024/01/01", EndDate: "2024-02-01"}},
		{"missing end", Request{Symbol: "600519", StartDate: "2024-01-01"}},
		{"start equals end", Request{Symbol: "600519", StartDate: "2024-01-01", EndDate: "2024-01-01"}},
		{"unknown source", Request{Symbol: "600519", StartDate: "2024-01-01", EndDate: "2024-02-01", Source: "tushare"}},
	}
	for _, test := range tests {
		_, err := test.req.Resolve()
		if !errors.Is(err, backtest.ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", test.name, err)
		}
	}
}

func TestLoad_CSVSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "600519.csv", `date,open,high,low,close,volume
2024-01-04,11,12,10,11.5,300
2024-01-02,10,11,9.5,10.5,100
2023-12-29,9,9.5,8.5,9,50
2024-01-03,10.5,11.2,10.1,11,200
2024-02-05,12,12,12,12,10
`)

	loader := NewLoader(dir, nil)
	res, err := loader.Load(context.Background(), Request{Symbol: "600519", StartDate: "2024-01-01", EndDate: "2024-01-31"})
	assert.NoError(t, err)
	assert.Equal(t, SourceCSV, res.SourceUsed)
	assert.Equal(t, 3, res.Series.Len())

	bars := res.Series.Bars()
	assert.True(t, bars[0].Date.Equal(day("2024-01-02")))
	assert.True(t, bars[2].Date.Equal(day("2024-01-04")))
	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, 300.0, bars[2].Volume)
}

func TestLoad_CSVAliases(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "000001.csv", "日期,开盘,收盘,最高,最低,成交量,成交额\n2024-01-02,10,10.2,10.5,9.9,1000,1\n2024-01-03,10.2,10.4,10.6,10.1,1200,1\n")
	writeFile(t, dir, "000002.csv", "ts_code,trade_date,open,high,low,close,vol\n000002.SZ,20240103,8,8.4,7.9,8.2,15\n000002.SZ,20240102,7.8,8.1,7.7,8,12\n")

	loader := NewLoader(dir, nil)

	ak, err := loader.Load(context.Background(), Request{Symbol: "000001", StartDate: "2024-01-01", EndDate: "2024-01-31", Source: "csv"})
	assert.NoError(t, err)
	assert.Equal(t, 2, ak.Series.Len())
	assert.Equal(t, 10.2, ak.Series.Bars()[0].Close)
	assert.Equal(t, 10.5, ak.Series.Bars()[0].High)

	ts, err := loader.Load(context.Background(), Request{Symbol: "000002", StartDate: "2024-01-01", EndDate: "2024-01-31", Source: "csv"})
	assert.NoError(t, err)
	bars := ts.Series.Bars()
	assert.True(t, bars[0].Date.Equal(day("2024-01-02")))
	assert.Equal(t, 1200.0, bars[0].Volume)
}

func TestLoad_AutoFallsBackToJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "600036.json", `{"bars": [
		{"date": "2024-01-02", "open": 30, "high": 31, "low": 29.5, "close": 30.5, "volume": 1000},
		{"date": "2024-01-03", "open": 30.5, "high": 32, "low": 30, "close": 31.8, "volume": 900}
	]}`)

	loader := NewLoader(dir, nil)
	res, err := loader.Load(context.Background(), Request{Symbol: "600036", StartDate: "2024-01-01", EndDate: "2024-01-31"})
	assert.NoError(t, err)
	assert.Equal(t, SourceJSON, res.SourceUsed)
	assert.Equal(t, 2, res.Series.Len())
	assert.Equal(t, 31.8, res.Series.Bars()[1].Close)
}

func TestLoad_AutoSkipsEmptyCSVRange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "600036.csv", "date,open,high,low,close,volume\n2020-01-02,1,1,1,1,1\n")
	writeFile(t, dir, "600036.json", `[{"date": "2024-01-02", "open": 30, "high": 31, "low": 29.5, "close": 30.5, "volume": 1000}]`)

	res, err := NewLoader(dir, nil).Load(context.Background(), Request{Symbol: "600036", StartDate: "2024-01-01", EndDate: "2024-01-31"})
	assert.NoError(t, err)
	assert.Equal(t, SourceJSON, res.SourceUsed)
}

func TestLoad_DataErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "600000.csv", "date,open,high,low,close\n2024-01-02,10,11,9,10\n2024-01-02,10,11,9,10.5\n")
	writeFile(t, dir, "600001.csv", "date,open,close\n2024-01-02,10,10\n")
	writeFile(t, dir, "600002.json", `[{"date": "2024-01-02", "open": "x", "high": 1, "low": 1, "close": 1}]`)
	writeFile(t, dir, "600003.csv", "date,open,high,low,close\n2024-01-02,10,9,9,10\n")

	loader := NewLoader(dir, nil)
	tests := []Request{
		{Symbol: "600000", StartDate: "2024-01-01", EndDate: "2024-01-31"},
		{Symbol: "600001", StartDate: "2024-01-01", EndDate: "2024-01-31"},
		{Symbol: "600002", StartDate: "2024-01-01", EndDate: "2024-01-31", Source: "json"},
		{Symbol: "600003", StartDate: "2024-01-01", EndDate: "2024-01-31"},
		{Symbol: "600004", StartDate: "2024-01-01", EndDate: "2024-01-31"},
		{Symbol: "600004", StartDate: "2024-01-01", EndDate: "2024-01-31", Source: "csv"},
	}
	for _, req := range tests {
		_, err := loader.Load(context.Background(), req)
		if !errors.Is(err, backtest.ErrData) {
			t.Errorf("%s (%s): expected ErrData, got %v", req.Symbol, req.Source, err)
		}
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(t.TempDir(), nil).Load(ctx, Request{Symbol: "600519", StartDate: "2024-01-01", EndDate: "2024-01-31"})
	assert.True(t, errors.Is(err, context.Canceled))
}
