package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tpsl-backtest/internal/backtest"
	"tpsl-backtest/internal/datafeed"
	"tpsl-backtest/internal/history"
	"tpsl-backtest/internal/notify"
)

// Outcome 为一次成功回测的结果。
type Outcome struct {
	RunID      string
	Report     backtest.Report
	SourceUsed datafeed.Source
	Summary    string
}

// Backtest 执行一次完整回测：加载行情、运行引擎、写报告、记历史、发通知。
// 失败同样会记历史并发送失败通知，错误原样返回。
func (a *App) Backtest(ctx context.Context, req Request) (Outcome, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	meta := notify.Meta{RunID: req.RunID, Note: req.RunNote, RunURL: a.cfg.Notify.RunURL}
	logger := a.logger.With(zap.String("run_id", req.RunID), zap.String("symbol", req.Symbol))

	out, err := a.backtest(ctx, req, logger)
	if err != nil {
		logger.Error("回测失败", zap.Error(err))
		a.record(ctx, req, "", history.StatusFailed, nil, err)
		a.notify(ctx, notify.FormatFailure(err, meta), logger)
		return Outcome{RunID: req.RunID}, err
	}

	out.Summary = notify.FormatSummary(out.Report, string(out.SourceUsed), meta)
	a.record(ctx, req, out.SourceUsed, history.StatusSuccess, out.Report.Summary, nil)
	a.notify(ctx, out.Summary, logger)
	return out, nil
}

func (a *App) backtest(ctx context.Context, req Request, logger *zap.Logger) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	rng, err := req.dataRequest().Resolve()
	if err != nil {
		return Outcome{}, err
	}
	params, err := req.params(rng)
	if err != nil {
		return Outcome{}, err
	}

	data, err := a.loader.Load(ctx, req.dataRequest())
	if err != nil {
		return Outcome{}, err
	}

	engine, err := backtest.NewEngine(params, logger.Named("engine"))
	if err != nil {
		return Outcome{}, err
	}
	report, err := engine.Run(data.Series)
	if err != nil {
		return Outcome{}, err
	}

	if req.ReportPath != "" {
		if err := writeReport(req.ReportPath, report, data.SourceUsed, a.cfg.Notify.RunURL); err != nil {
			return Outcome{}, err
		}
		logger.Info("报告已写入", zap.String("path", req.ReportPath))
	}
	if req.TradesCSV != "" {
		if err := writeTradesCSV(req.TradesCSV, report.Trades); err != nil {
			return Outcome{}, err
		}
		logger.Info("成交明细已写入", zap.String("path", req.TradesCSV))
	}

	return Outcome{RunID: req.RunID, Report: report, SourceUsed: data.SourceUsed}, nil
}

func (a *App) record(ctx context.Context, req Request, source datafeed.Source, status history.Status, summary interface{}, runErr error) {
	if a.history == nil {
		return
	}
	run := history.Run{
		ID:         req.RunID,
		Note:       req.RunNote,
		Symbol:     req.Symbol,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Datasource: string(source),
		Status:     status,
		Params:     req,
		Summary:    summary,
		CreatedAt:  time.Now().UTC(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := a.history.Record(ctx, run); err != nil {
		a.logger.Warn("记录回测历史失败", zap.String("run_id", req.RunID), zap.Error(err))
	}
}

func (a *App) notify(ctx context.Context, text string, logger *zap.Logger) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.SendText(ctx, text); err != nil {
		logger.Warn("发送通知失败", zap.Error(err))
	}
}
