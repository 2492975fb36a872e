package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"tpsl-backtest/internal/app"
	"tpsl-backtest/internal/config"
	"tpsl-backtest/internal/history"
	"tpsl-backtest/internal/log"
	"tpsl-backtest/internal/store"
)

type cliFlags struct {
	configPath     string
	symbol         string
	start          string
	end            string
	takeProfit     float64
	stopLoss       float64
	maxHoldDays    int
	cash           float64
	commission     float64
	lotSize        int
	fill           string
	singleTrade    bool
	entry          string
	entryPeriod    int
	entryThreshold float64
	datasource     string
	report         string
	tradesCSV      string
	runNote        string
	runID          string
	sweep          bool
	history        int
	serve          bool
}

func parseFlags() (cliFlags, map[string]bool) {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&f.symbol, "symbol", "", "A股代码，6 位数字，如 600519")
	flag.StringVar(&f.start, "start", "", "开始日期 YYYY-MM-DD")
	flag.StringVar(&f.end, "end", "", "结束日期 YYYY-MM-DD")
	flag.Float64Var(&f.takeProfit, "take-profit", 0, "止盈阈值，如 0.03")
	flag.Float64Var(&f.stopLoss, "stop-loss", 0, "止损阈值，如 -0.05")
	flag.IntVar(&f.maxHoldDays, "max-hold-days", 0, "最长持有交易日数")
	flag.Float64Var(&f.cash, "cash", 0, "初始资金")
	flag.Float64Var(&f.commission, "commission", 0, "单边手续费率")
	flag.IntVar(&f.lotSize, "lot-size", 0, "每手股数，0 表示允许零股")
	flag.StringVar(&f.fill, "fill", "", "入场成交模型：close | next_open")
	flag.BoolVar(&f.singleTrade, "single-trade", false, "整个区间最多只做一笔交易")
	flag.StringVar(&f.entry, "entry", "", "入场规则：always | sma_cross | ema_trend | rsi_oversold")
	flag.IntVar(&f.entryPeriod, "entry-period", 0, "入场指标周期")
	flag.Float64Var(&f.entryThreshold, "entry-threshold", 0, "rsi_oversold 阈值")
	flag.StringVar(&f.datasource, "datasource", "", "数据源：auto | csv | json")
	flag.StringVar(&f.report, "report", "", "报告输出路径")
	flag.StringVar(&f.tradesCSV, "trades-csv", "", "成交明细 CSV 输出路径")
	flag.StringVar(&f.runNote, "run-note", "", "运行备注")
	flag.StringVar(&f.runID, "run-id", "", "运行 ID，默认自动生成")
	flag.BoolVar(&f.sweep, "sweep", false, "按 sweep.grid 做参数扫描")
	flag.IntVar(&f.history, "history", 0, "列出最近 N 条回测记录后退出")
	flag.BoolVar(&f.serve, "serve", false, "启动历史查询接口")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set
}

func (f cliFlags) apply(req *app.Request, set map[string]bool) {
	req.Symbol = f.symbol
	req.StartDate = f.start
	req.EndDate = f.end
	req.RunNote = f.runNote
	req.RunID = f.runID
	if set["take-profit"] {
		req.TakeProfit = f.takeProfit
	}
	if set["stop-loss"] {
		req.StopLoss = f.stopLoss
	}
	if set["max-hold-days"] {
		req.MaxHoldDays = f.maxHoldDays
	}
	if set["cash"] {
		req.Cash = f.cash
	}
	if set["commission"] {
		req.Commission = f.commission
	}
	if set["lot-size"] {
		req.LotSize = f.lotSize
	}
	if set["fill"] {
		req.Fill = f.fill
	}
	if set["single-trade"] {
		req.SingleTrade = f.singleTrade
	}
	if set["entry"] {
		req.Entry.Rule = f.entry
	}
	if set["entry-period"] {
		req.Entry.Period = f.entryPeriod
	}
	if set["entry-threshold"] {
		req.Entry.Threshold = f.entryThreshold
	}
	if set["datasource"] {
		req.Datasource = f.datasource
	}
	if set["report"] {
		req.ReportPath = f.report
	}
	if set["trades-csv"] {
		req.TradesCSV = f.tradesCSV
	}
}

func main() {
	flags, set := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, flags, set); err != nil {
		logger.Error("运行失败", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, flags cliFlags, set map[string]bool) error {
	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	backtestApp, err := app.New(ctx, cfg, logger, sqliteStore)
	if err != nil {
		return err
	}

	switch {
	case flags.serve:
		return backtestApp.Serve(ctx)
	case flags.history > 0:
		runs, err := backtestApp.History(ctx, flags.symbol, flags.history)
		if err != nil {
			return err
		}
		printHistory(runs)
		return nil
	}

	req := app.DefaultRequest(cfg)
	flags.apply(&req, set)

	if flags.sweep {
		results, err := backtestApp.Sweep(ctx, req, nil)
		if err != nil {
			return err
		}
		printSweep(results)
		return nil
	}

	out, err := backtestApp.Backtest(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(out.Summary)
	return nil
}

func printSweep(results []app.SweepResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TP\tSL\tHold\t总收益\t最大回撤\t胜率\t交易次数\tSharpe")
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(w, "%.2f%%\t%.2f%%\t%d\t%.2f%%\t%.2f%%\t%.2f%%\t%d\t%.2f\n",
			r.Point.TakeProfit*100, r.Point.StopLoss*100, r.Point.MaxHoldDays,
			s.TotalReturn*100, s.MaxDrawdown*100, s.WinRate*100, s.TradeCount, s.SharpeRatio)
	}
	_ = w.Flush()
}

func printHistory(runs []history.Run) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RunID\t时间\t标的\t区间\t状态\t备注\t错误")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s ~ %s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Symbol,
			r.StartDate, r.EndDate, r.Status, r.Note, r.Error)
	}
	_ = w.Flush()
}
