package backtest

import (
	"fmt"
	"math"
	"time"
)

// DateLayout 为日线日期格式。
const DateLayout = "2006-01-02"

// Bar 代表单根日K线。
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries 为单一标的按日期升序排列的K线序列，构造后不可修改。
type PriceSeries struct {
	symbol string
	bars   []Bar
}

// NewPriceSeries 校验并创建K线序列。引擎不会修复坏数据，任何问题都返回 ErrData。
func NewPriceSeries(symbol string, bars []Bar) (PriceSeries, error) {
	if len(bars) == 0 {
		return PriceSeries{}, fmt.Errorf("%w: %s 无行情数据", ErrData, symbol)
	}

	for i, bar := range bars {
		if err := validateBar(bar); err != nil {
			return PriceSeries{}, fmt.Errorf("%w: 第 %d 根K线(%s): %v", ErrData, i, bar.Date.Format(DateLayout), err)
		}
		if i > 0 && !bar.Date.After(bars[i-1].Date) {
			return PriceSeries{}, fmt.Errorf("%w: 第 %d 根K线日期 %s 未严格递增", ErrData, i, bar.Date.Format(DateLayout))
		}
	}

	return PriceSeries{
		symbol: symbol,
		bars:   append([]Bar(nil), bars...),
	}, nil
}

func validateBar(bar Bar) error {
	if bar.Date.IsZero() {
		return fmt.Errorf("缺少日期")
	}
	for _, v := range []float64{bar.Open, bar.High, bar.Low, bar.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("价格必须为正的有限数")
		}
	}
	if math.IsNaN(bar.Volume) || bar.Volume < 0 {
		return fmt.Errorf("成交量不能为负")
	}
	if bar.High < math.Max(bar.Open, bar.Close) {
		return fmt.Errorf("high %.4f 低于 open/close", bar.High)
	}
	if bar.Low > math.Min(bar.Open, bar.Close) {
		return fmt.Errorf("low %.4f 高于 open/close", bar.Low)
	}
	return nil
}

// Symbol 返回标的代码。
func (s PriceSeries) Symbol() string {
	return s.symbol
}

// Len 返回K线数量。
func (s PriceSeries) Len() int {
	return len(s.bars)
}

// Bars 返回K线副本。
func (s PriceSeries) Bars() []Bar {
	return append([]Bar(nil), s.bars...)
}

// Closes 返回收盘价序列。
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.bars))
	for i, bar := range s.bars {
		closes[i] = bar.Close
	}
	return closes
}

// FirstDate 返回首根K线日期。
func (s PriceSeries) FirstDate() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[0].Date
}

// LastDate 返回末根K线日期。
func (s PriceSeries) LastDate() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[len(s.bars)-1].Date
}
