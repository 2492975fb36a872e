package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"tpsl-backtest/internal/config"
)

// Notifier 发送文本通知。
type Notifier interface {
	SendText(ctx context.Context, text string) error
}

// Feishu 向飞书群机器人 webhook 发送文本消息，未配置 webhook 时静默跳过。
type Feishu struct {
	webhook string
	client  *http.Client
	logger  *zap.Logger
}

// NewFeishu 根据配置创建飞书通知器。
func NewFeishu(cfg config.NotifyConfig, logger *zap.Logger) *Feishu {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Feishu{
		webhook: cfg.Webhook,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled 表示是否配置了 webhook。
func (f *Feishu) Enabled() bool {
	return f.webhook != ""
}

// SendText 发送 msg_type=text 消息。HTTP 状态异常或返回体 code 非 0 均视为失败。
func (f *Feishu) SendText(ctx context.Context, text string) error {
	if !f.Enabled() {
		f.logger.Debug("未配置 webhook，跳过通知")
		return nil
	}

	payload := map[string]interface{}{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: 序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhook, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: 创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: 发送通知失败: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: webhook 返回状态 %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if gjson.ValidBytes(body) {
		reply := gjson.ParseBytes(body)
		if code := reply.Get("code"); code.Exists() && code.Int() != 0 {
			return fmt.Errorf("notify: webhook 返回错误 code=%d msg=%s", code.Int(), reply.Get("msg").String())
		}
	}

	f.logger.Info("通知已发送", zap.Int("bytes", len(data)))
	return nil
}
