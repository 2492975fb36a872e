package datafeed

import (
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"tpsl-backtest/internal/backtest"
)

// parseJSON 读取日线 JSON：顶层数组，或 {"bars": [...]} 包装。
func parseJSON(r io.Reader) ([]backtest.Bar, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取 JSON 失败: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("JSON 格式错误")
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		doc = doc.Get("bars")
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("JSON 中未找到K线数组")
	}

	items := doc.Array()
	bars := make([]backtest.Bar, 0, len(items))
	for idx, item := range items {
		date, err := parseBarDate(item.Get("date").String())
		if err != nil {
			return nil, fmt.Errorf("解析第 %d 根K线失败: %w", idx, err)
		}
		for _, key := range []string{"open", "high", "low", "close"} {
			if item.Get(key).Type != gjson.Number {
				return nil, fmt.Errorf("解析第 %d 根K线失败: 缺少数值字段 %s", idx, key)
			}
		}

		bars = append(bars, backtest.Bar{
			Date:   date,
			Open:   item.Get("open").Float(),
			High:   item.Get("high").Float(),
			Low:    item.Get("low").Float(),
			Close:  item.Get("close").Float(),
			Volume: item.Get("volume").Float(),
		})
	}

	return bars, nil
}
