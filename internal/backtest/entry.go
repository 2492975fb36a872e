package backtest

import "errors"

// EntrySignal 判断空仓时第 i 根K线是否发出入场信号。
type EntrySignal func(i int) bool

// EntryRule 为可替换的入场规则。Prepare 在每次回测开始时调用一次，
// 返回的信号只在该次回测内使用，规则本身不得保存跨回测的状态。
type EntryRule interface {
	Name() string
	Prepare(bars []Bar) (EntrySignal, error)
}

// EntryRuleFunc 允许使用函数作为入场规则。
type EntryRuleFunc struct {
	RuleName string
	Fn       func(bars []Bar) (EntrySignal, error)
}

func (f EntryRuleFunc) Name() string {
	return f.RuleName
}

func (f EntryRuleFunc) Prepare(bars []Bar) (EntrySignal, error) {
	if f.Fn == nil {
		return nil, errors.New("backtest: 入场规则函数未实现")
	}
	return f.Fn(bars)
}

type alwaysEnter struct{}

func (alwaysEnter) Name() string {
	return "always"
}

func (alwaysEnter) Prepare([]Bar) (EntrySignal, error) {
	return func(int) bool { return true }, nil
}

// AlwaysEnter 空仓即入场。
var AlwaysEnter EntryRule = alwaysEnter{}
