package app

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"

	"tpsl-backtest/internal/backtest"
	"tpsl-backtest/internal/config"
	"tpsl-backtest/internal/datafeed"
	"tpsl-backtest/internal/indicator"
)

// maxHoldLimit 为单笔最长持有天数上限。
const maxHoldLimit = 200

// Request 为一次回测的完整输入，命令行参数覆盖配置默认值。
type Request struct {
	Symbol      string             `json:"symbol"`
	StartDate   string             `json:"start_date"`
	EndDate     string             `json:"end_date"`
	TakeProfit  float64            `json:"take_profit"`
	StopLoss    float64            `json:"stop_loss"`
	MaxHoldDays int                `json:"max_hold_days"`
	Cash        float64            `json:"cash"`
	Commission  float64            `json:"commission"`
	LotSize     int                `json:"lot_size"`
	Fill        string             `json:"fill_model"`
	SingleTrade bool               `json:"single_trade"`
	Entry       config.EntryConfig `json:"entry"`
	Datasource  string             `json:"datasource"`
	ReportPath  string             `json:"-"`
	TradesCSV   string             `json:"-"`
	RunNote     string             `json:"-"`
	RunID       string             `json:"-"`
}

// DefaultRequest 用配置中的默认参数填充请求。
func DefaultRequest(cfg *config.Config) Request {
	bt := cfg.Backtest
	return Request{
		TakeProfit:  bt.TakeProfit,
		StopLoss:    bt.StopLoss,
		MaxHoldDays: bt.MaxHoldDays,
		Cash:        bt.Cash,
		Commission:  bt.Commission,
		LotSize:     bt.LotSize,
		Fill:        bt.FillModel,
		SingleTrade: bt.SingleTrade,
		Entry:       bt.Entry,
		Datasource:  cfg.Data.Source,
		ReportPath:  cfg.Report.Path,
		TradesCSV:   cfg.Report.TradesCSV,
	}
}

// Validate 校验数值参数，所有问题一并返回。
func (r Request) Validate() error {
	var err error
	if math.IsNaN(r.TakeProfit) || r.TakeProfit <= 0 {
		err = multierr.Append(err, fmt.Errorf("take_profit 必须 > 0，收到：%v", r.TakeProfit))
	}
	if math.IsNaN(r.StopLoss) || r.StopLoss >= 0 {
		err = multierr.Append(err, fmt.Errorf("stop_loss 必须 < 0，收到：%v", r.StopLoss))
	}
	if r.MaxHoldDays < 1 || r.MaxHoldDays > maxHoldLimit {
		err = multierr.Append(err, fmt.Errorf("max_hold_days 必须在 1~%d，收到：%d", maxHoldLimit, r.MaxHoldDays))
	}
	if math.IsNaN(r.Cash) || math.IsInf(r.Cash, 0) || r.Cash <= 0 {
		err = multierr.Append(err, fmt.Errorf("cash 必须 > 0，收到：%v", r.Cash))
	}
	if r.Commission < 0 || r.Commission >= 1 {
		err = multierr.Append(err, errors.New("commission 必须位于[0,1)"))
	}
	if r.LotSize < 0 {
		err = multierr.Append(err, errors.New("lot_size 不能为负"))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", backtest.ErrConfiguration, err)
	}
	return nil
}

func (r Request) dataRequest() datafeed.Request {
	return datafeed.Request{
		Symbol:    r.Symbol,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		Source:    r.Datasource,
	}
}

// params 将请求转换为引擎参数。
func (r Request) params(rng datafeed.Range) (backtest.Params, error) {
	policy, err := backtest.NewExitPolicy(r.TakeProfit, r.StopLoss, r.MaxHoldDays)
	if err != nil {
		return backtest.Params{}, err
	}
	fill, err := backtest.ParseFillModel(r.Fill)
	if err != nil {
		return backtest.Params{}, err
	}
	entry, err := indicator.NewRule(indicator.RuleConfig{
		Name:      r.Entry.Rule,
		Period:    r.Entry.Period,
		Threshold: r.Entry.Threshold,
	})
	if err != nil {
		return backtest.Params{}, fmt.Errorf("%w: %w", backtest.ErrConfiguration, err)
	}

	return backtest.Params{
		Symbol:      rng.Symbol,
		StartDate:   rng.Start,
		EndDate:     rng.End,
		Policy:      policy,
		InitialCash: r.Cash,
		Fill:        fill,
		Commission:  r.Commission,
		LotSize:     r.LotSize,
		SingleTrade: r.SingleTrade,
		Entry:       entry,
	}, nil
}
