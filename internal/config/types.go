package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了回测运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Data     DataConfig     `mapstructure:"data"`
	Report   ReportConfig   `mapstructure:"report"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BacktestConfig 为命令行未指定时使用的默认回测参数。
type BacktestConfig struct {
	Cash        float64     `mapstructure:"cash"`
	TakeProfit  float64     `mapstructure:"take_profit"`
	StopLoss    float64     `mapstructure:"stop_loss"`
	MaxHoldDays int         `mapstructure:"max_hold_days"`
	Commission  float64     `mapstructure:"commission"`
	LotSize     int         `mapstructure:"lot_size"`
	FillModel   string      `mapstructure:"fill_model"`
	SingleTrade bool        `mapstructure:"single_trade"`
	Entry       EntryConfig `mapstructure:"entry"`
}

// EntryConfig 描述入场规则。
type EntryConfig struct {
	Rule      string  `mapstructure:"rule"`
	Period    int     `mapstructure:"period"`
	Threshold float64 `mapstructure:"threshold"`
}

// DataConfig 描述本地行情目录。
type DataConfig struct {
	Source string `mapstructure:"source"`
	Dir    string `mapstructure:"dir"`
}

// ReportConfig 控制报告输出位置。
type ReportConfig struct {
	Path      string `mapstructure:"path"`
	TradesCSV string `mapstructure:"trades_csv"`
}

// NotifyConfig 描述飞书 webhook 通知。
type NotifyConfig struct {
	Webhook string        `mapstructure:"webhook"`
	Timeout time.Duration `mapstructure:"timeout"`
	RunURL  string        `mapstructure:"run_url"`
}

// SweepConfig 控制参数扫描。
type SweepConfig struct {
	Concurrency int          `mapstructure:"concurrency"`
	Grid        []SweepPoint `mapstructure:"grid"`
}

// SweepPoint 为参数扫描中的一组离场参数。
type SweepPoint struct {
	TakeProfit  float64 `mapstructure:"take_profit"`
	StopLoss    float64 `mapstructure:"stop_loss"`
	MaxHoldDays int     `mapstructure:"max_hold_days"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ServerConfig 控制历史查询接口。
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Backtest.Cash <= 0 {
		err = multierr.Append(err, errors.New("backtest.cash 必须大于0"))
	}
	if c.Backtest.TakeProfit <= 0 {
		err = multierr.Append(err, errors.New("backtest.take_profit 必须大于0"))
	}
	if c.Backtest.StopLoss >= 0 {
		err = multierr.Append(err, errors.New("backtest.stop_loss 必须小于0"))
	}
	if c.Backtest.MaxHoldDays < 1 || c.Backtest.MaxHoldDays > 200 {
		err = multierr.Append(err, errors.New("backtest.max_hold_days 必须位于[1,200]"))
	}
	if c.Backtest.Commission < 0 || c.Backtest.Commission >= 0.1 {
		err = multierr.Append(err, errors.New("backtest.commission 应位于[0,0.1)"))
	}
	if c.Backtest.LotSize < 0 {
		err = multierr.Append(err, errors.New("backtest.lot_size 不能为负"))
	}
	switch strings.ToLower(c.Backtest.FillModel) {
	case "", "close", "next_open":
	default:
		err = multierr.Append(err, fmt.Errorf("backtest.fill_model 不支持：%s", c.Backtest.FillModel))
	}
	switch strings.ToLower(c.Data.Source) {
	case "", "auto", "csv", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("data.source 不支持：%s", c.Data.Source))
	}
	if c.Report.Path == "" {
		err = multierr.Append(err, errors.New("report.path 不能为空"))
	}
	if c.Notify.Timeout <= 0 {
		err = multierr.Append(err, errors.New("notify.timeout 必须大于0"))
	}
	if c.Sweep.Concurrency <= 0 {
		err = multierr.Append(err, errors.New("sweep.concurrency 必须大于0"))
	}
	for i, p := range c.Sweep.Grid {
		if p.TakeProfit <= 0 || p.StopLoss >= 0 || p.MaxHoldDays < 1 || p.MaxHoldDays > 200 {
			err = multierr.Append(err, fmt.Errorf("sweep.grid[%d] 参数非法", i))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于[0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
