package history

import (
	"errors"
	"time"
)

// Status 表示一次回测的结果状态。
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrNotFound 表示指定 run_id 不存在。
var ErrNotFound = errors.New("history: 回测记录不存在")

// Run 为一次回测的归档记录。写入时 Params/Summary 为任意可序列化值，
// 读出时为 json.RawMessage。
type Run struct {
	ID         string      `json:"run_id"`
	Note       string      `json:"note,omitempty"`
	Symbol     string      `json:"symbol"`
	StartDate  string      `json:"start_date"`
	EndDate    string      `json:"end_date"`
	Datasource string      `json:"datasource,omitempty"`
	Status     Status      `json:"status"`
	Params     interface{} `json:"params,omitempty"`
	Summary    interface{} `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
