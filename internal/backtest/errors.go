package backtest

import "errors"

var (
	// ErrConfiguration 表示回测参数或退出策略非法，回测不会开始。
	ErrConfiguration = errors.New("backtest: 参数配置错误")
	// ErrData 表示K线序列为空或格式错误。
	ErrData = errors.New("backtest: 行情数据错误")
	// ErrInvariant 表示内部不变量被破坏，属于程序缺陷。
	ErrInvariant = errors.New("backtest: 内部不变量被破坏")
)
