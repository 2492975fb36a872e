package backtest

import (
	"math"
	"time"
)

// State 为仓位状态机的状态。
type State string

const (
	StateFlat    State = "FLAT"
	StateHolding State = "HOLDING"
)

// position 只在持仓期间存在，平仓后转换为 Trade。
type position struct {
	entryDate  time.Time
	entryPrice float64
	shares     float64
	entryFee   float64
	daysHeld   int
}

// positionMachine 逐根K线驱动单一仓位的开平仓，同一时刻最多持有一个仓位。
type positionMachine struct {
	policy      ExitPolicy
	fill        FillModel
	commission  float64
	lotSize     int
	singleTrade bool
	signal      EntrySignal
	ledger      *Ledger

	cash         float64
	pos          *position
	pendingEntry bool
	traded       bool
}

func newPositionMachine(params Params, signal EntrySignal, ledger *Ledger) *positionMachine {
	return &positionMachine{
		policy:      params.Policy,
		fill:        params.Fill,
		commission:  params.Commission,
		lotSize:     params.LotSize,
		singleTrade: params.SingleTrade,
		signal:      signal,
		ledger:      ledger,
		cash:        params.InitialCash,
	}
}

// State 返回当前状态。
func (m *positionMachine) State() State {
	if m.pos != nil {
		return StateHolding
	}
	return StateFlat
}

// Step 处理第 i 根K线并返回收盘后的权益；若当根K线平仓则一并返回交易记录。
// 平仓当根K线不再入场，最后一根K线不产生新的入场信号。
func (m *positionMachine) Step(i int, bar Bar, last bool) (float64, *Trade, error) {
	if m.pendingEntry {
		m.pendingEntry = false
		m.open(bar.Date, bar.Open)
	}

	var closed *Trade
	if m.pos != nil {
		m.pos.daysHeld++
		unrealized := (bar.Close - m.pos.entryPrice) / m.pos.entryPrice

		reason, exit := m.policy.Check(unrealized, m.pos.daysHeld)
		if !exit && last {
			reason, exit = ExitEndOfData, true
		}
		if exit {
			trade, err := m.close(bar, reason)
			if err != nil {
				return 0, nil, err
			}
			closed = &trade
		}
	} else if !last && m.canEnter() && m.signal(i) {
		switch m.fill {
		case FillNextOpen:
			m.pendingEntry = true
		default:
			m.open(bar.Date, bar.Close)
		}
	}

	return m.equity(bar.Close), closed, nil
}

func (m *positionMachine) canEnter() bool {
	return !(m.singleTrade && m.traded)
}

// open 按可用资金计算股数建仓；资金不足一手时保持空仓。
func (m *positionMachine) open(date time.Time, price float64) {
	shares := m.cash / (price * (1 + m.commission))
	if m.lotSize > 0 {
		lot := float64(m.lotSize)
		shares = math.Floor(shares/lot) * lot
	}
	if shares <= 0 {
		return
	}

	cost := shares * price
	fee := cost * m.commission
	m.cash -= cost + fee
	m.pos = &position{
		entryDate:  date,
		entryPrice: price,
		shares:     shares,
		entryFee:   fee,
	}
}

func (m *positionMachine) close(bar Bar, reason ExitReason) (Trade, error) {
	pos := m.pos
	proceeds := pos.shares * bar.Close
	fee := proceeds * m.commission

	trade := Trade{
		EntryDate:  pos.entryDate,
		EntryPrice: pos.entryPrice,
		ExitDate:   bar.Date,
		ExitPrice:  bar.Close,
		Shares:     pos.shares,
		DaysHeld:   pos.daysHeld,
		ReturnPct:  (bar.Close - pos.entryPrice) / pos.entryPrice,
		PnL:        proceeds - fee - pos.shares*pos.entryPrice - pos.entryFee,
		Commission: pos.entryFee + fee,
		ExitReason: reason,
	}
	if err := m.ledger.Append(trade); err != nil {
		return Trade{}, err
	}

	m.cash += proceeds - fee
	m.pos = nil
	m.traded = true
	return trade, nil
}

func (m *positionMachine) equity(price float64) float64 {
	if m.pos == nil {
		return m.cash
	}
	return m.cash + m.pos.shares*price
}
