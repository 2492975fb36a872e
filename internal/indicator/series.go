package indicator

import (
	"math"

	"tpsl-backtest/internal/backtest"
)

// Series 保存指标计算使用的收盘价序列。
type Series struct {
	Close []float64
}

// NewSeries 从日K线创建 Series，保持原有顺序。
func NewSeries(bars []backtest.Bar) Series {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	return Series{Close: closes}
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Close)
}

// At 返回第 i 个值，越界或尚未完成预热（为0）时返回 NaN。
func At(values []float64, i int) float64 {
	if i < 0 || i >= len(values) || values[i] == 0 {
		return math.NaN()
	}
	return values[i]
}
