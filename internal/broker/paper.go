package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trendline-trading-bot/internal/market"
)

const updateBuffer = 256

// PaperAdapter simulates a venue. MARKET orders fill immediately with adverse
// slippage; LIMIT and STOP orders wait in an in-memory table until a price
// pass triggers them. Exit legs sharing a GroupID are one-cancels-other.
type PaperAdapter struct {
	specs         market.SpecSource
	slippageTicks int
	logger        zerolog.Logger

	mu        sync.Mutex
	connected bool
	balance   decimal.Decimal
	pending   map[string]OrderRequest // brokerOrderID -> resting order
	completed map[string]OrderUpdate  // terminal states, for status queries
	book      map[string]int          // instrument -> signed net quantity

	updates    chan OrderUpdate
	posUpdates chan PositionUpdate
}

func NewPaperAdapter(specs market.SpecSource, slippageTicks int, startingBalance decimal.Decimal, logger zerolog.Logger) *PaperAdapter {
	return &PaperAdapter{
		specs:         specs,
		slippageTicks: slippageTicks,
		logger:        logger.With().Str("component", "paper_broker").Logger(),
		balance:       startingBalance,
		pending:       make(map[string]OrderRequest),
		completed:     make(map[string]OrderUpdate),
		book:          make(map[string]int),
		updates:       make(chan OrderUpdate, updateBuffer),
		posUpdates:    make(chan PositionUpdate, updateBuffer),
	}
}

func (p *PaperAdapter) Mode() Mode { return ModePaper }

func (p *PaperAdapter) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *PaperAdapter) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	p.connected = false
	close(p.updates)
	close(p.posUpdates)
	return nil
}

func (p *PaperAdapter) OrderUpdates() <-chan OrderUpdate       { return p.updates }
func (p *PaperAdapter) PositionUpdates() <-chan PositionUpdate { return p.posUpdates }

// slippage returns the adverse price offset for one fill.
func (p *PaperAdapter) slippage(instrument string) decimal.Decimal {
	spec, err := p.specs.Spec(instrument)
	if err != nil {
		return decimal.Zero
	}
	return spec.TickSize.Mul(decimal.NewFromInt(int64(p.slippageTicks)))
}

func (p *PaperAdapter) emit(u OrderUpdate) {
	select {
	case p.updates <- u:
	default:
		p.logger.Warn().Str("broker_order_id", u.BrokerOrderID).Msg("order update channel full, dropping")
	}
}

func (p *PaperAdapter) emitPosition(instrument string, qty int, price decimal.Decimal) {
	u := PositionUpdate{Instrument: instrument, Quantity: qty, AvgPrice: price, Timestamp: time.Now().UTC()}
	select {
	case p.posUpdates <- u:
	default:
	}
}

// fillLocked records a fill and emits the update. Caller holds p.mu.
func (p *PaperAdapter) fillLocked(id string, req OrderRequest, price decimal.Decimal) OrderUpdate {
	u := OrderUpdate{
		BrokerOrderID:  id,
		Instrument:     req.Instrument,
		Status:         StatusFilled,
		FilledQuantity: req.Quantity,
		FillPrice:      price,
		Timestamp:      time.Now().UTC(),
	}
	p.completed[id] = u

	delta := req.Quantity
	if req.Side == SideSell {
		delta = -delta
	}
	p.book[req.Instrument] += delta
	p.emitPosition(req.Instrument, p.book[req.Instrument], price)
	return u
}

func (p *PaperAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (PlacedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return PlacedOrder{}, ErrNotConnected
	}
	if req.Quantity <= 0 {
		return PlacedOrder{}, fmt.Errorf("paper: quantity must be positive, got %d", req.Quantity)
	}

	id := uuid.New().String()
	switch req.Type {
	case TypeMarket:
		slip := p.slippage(req.Instrument)
		price := req.Price.Add(slip)
		if req.Side == SideSell {
			price = req.Price.Sub(slip)
		}
		u := p.fillLocked(id, req, price)
		p.emit(u)
		p.logger.Debug().
			Str("broker_order_id", id).
			Str("instrument", req.Instrument).
			Str("fill_price", price.String()).
			Msg("market order filled")
		return PlacedOrder{BrokerOrderID: id, Status: StatusFilled}, nil
	case TypeLimit, TypeStop:
		p.pending[id] = req
		return PlacedOrder{BrokerOrderID: id, Status: StatusWorking}, nil
	default:
		return PlacedOrder{}, fmt.Errorf("paper: unsupported order type %q", req.Type)
	}
}

// PlaceBracket submits every leg or none. Every failure path is checked under
// one lock before any leg touches the book or the pending table, so a bad leg
// leaves no partial bracket behind; fills are emitted only after all legs are
// accepted.
func (p *PaperAdapter) PlaceBracket(ctx context.Context, reqs []OrderRequest) ([]PlacedOrder, error) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil, ErrNotConnected
	}
	for i, req := range reqs {
		if req.Quantity <= 0 {
			p.mu.Unlock()
			return nil, fmt.Errorf("paper: bracket leg %d has non-positive quantity", i)
		}
		switch req.Type {
		case TypeMarket, TypeLimit, TypeStop:
		default:
			p.mu.Unlock()
			return nil, fmt.Errorf("paper: bracket leg %d has unsupported order type %q", i, req.Type)
		}
	}

	placed := make([]PlacedOrder, 0, len(reqs))
	var emits []OrderUpdate
	for _, req := range reqs {
		id := uuid.New().String()
		if req.Type == TypeMarket {
			slip := p.slippage(req.Instrument)
			price := req.Price.Add(slip)
			if req.Side == SideSell {
				price = req.Price.Sub(slip)
			}
			emits = append(emits, p.fillLocked(id, req, price))
			placed = append(placed, PlacedOrder{BrokerOrderID: id, Status: StatusFilled})
			continue
		}
		p.pending[id] = req
		placed = append(placed, PlacedOrder{BrokerOrderID: id, Status: StatusWorking})
	}
	p.mu.Unlock()

	for _, u := range emits {
		p.emit(u)
	}
	return placed, nil
}

func (p *PaperAdapter) CancelOrder(ctx context.Context, brokerOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.pending[brokerOrderID]
	if !ok {
		if _, done := p.completed[brokerOrderID]; done {
			// Cancelling an already-terminal order is a no-op so OCO races
			// stay harmless.
			return nil
		}
		return ErrUnknownOrder
	}
	delete(p.pending, brokerOrderID)
	u := OrderUpdate{
		BrokerOrderID: brokerOrderID,
		Instrument:    req.Instrument,
		Status:        StatusCancelled,
		Timestamp:     time.Now().UTC(),
	}
	p.completed[brokerOrderID] = u
	p.emit(u)
	return nil
}

func (p *PaperAdapter) ModifyOrder(ctx context.Context, brokerOrderID string, price decimal.Decimal, quantity int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.pending[brokerOrderID]
	if !ok {
		return ErrUnknownOrder
	}
	if !price.IsZero() {
		req.Price = price
	}
	if quantity > 0 {
		req.Quantity = quantity
	}
	p.pending[brokerOrderID] = req
	return nil
}

func (p *PaperAdapter) Positions(ctx context.Context) ([]BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []BrokerPosition
	for instrument, qty := range p.book {
		if qty != 0 {
			out = append(out, BrokerPosition{Instrument: instrument, Quantity: qty})
		}
	}
	return out, nil
}

func (p *PaperAdapter) OrderStatus(ctx context.Context, brokerOrderID string) (OrderUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.completed[brokerOrderID]; ok {
		return u, nil
	}
	if req, ok := p.pending[brokerOrderID]; ok {
		return OrderUpdate{BrokerOrderID: brokerOrderID, Instrument: req.Instrument, Status: StatusWorking}, nil
	}
	return OrderUpdate{}, ErrUnknownOrder
}

func (p *PaperAdapter) AccountInfo(ctx context.Context) (AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return AccountInfo{Mode: ModePaper, Balance: p.balance, Currency: "USD"}, nil
}

// EvaluatePending runs one monitor pass against the latest price. STOP legs
// trigger on an adverse cross and fill with slippage; LIMIT legs fill exactly
// at their price. When an exit leg fills, its OCO siblings (same GroupID) are
// cancelled in the same pass.
func (p *PaperAdapter) EvaluatePending(ctx context.Context, instrument string, last decimal.Decimal) {
	p.mu.Lock()

	var emits []OrderUpdate
	cancelledGroups := make(map[string]bool)

	for id, req := range p.pending {
		if req.Instrument != instrument {
			continue
		}
		fillPrice, triggered := p.triggerPrice(req, last)
		if !triggered {
			continue
		}
		delete(p.pending, id)
		emits = append(emits, p.fillLocked(id, req, fillPrice))
		if req.GroupID != "" {
			cancelledGroups[req.GroupID] = true
		}
	}

	for id, req := range p.pending {
		if req.GroupID == "" || !cancelledGroups[req.GroupID] {
			continue
		}
		delete(p.pending, id)
		u := OrderUpdate{
			BrokerOrderID: id,
			Instrument:    req.Instrument,
			Status:        StatusCancelled,
			Timestamp:     time.Now().UTC(),
		}
		p.completed[id] = u
		emits = append(emits, u)
	}
	p.mu.Unlock()

	for _, u := range emits {
		p.emit(u)
	}
}

// triggerPrice decides whether a resting order fires at the given last price
// and at what price it fills.
func (p *PaperAdapter) triggerPrice(req OrderRequest, last decimal.Decimal) (decimal.Decimal, bool) {
	switch req.Type {
	case TypeStop:
		slip := p.slippage(req.Instrument)
		if req.Side == SideSell && last.LessThanOrEqual(req.Price) {
			return req.Price.Sub(slip), true
		}
		if req.Side == SideBuy && last.GreaterThanOrEqual(req.Price) {
			return req.Price.Add(slip), true
		}
	case TypeLimit:
		if req.Side == SideSell && last.GreaterThanOrEqual(req.Price) {
			return req.Price, true
		}
		if req.Side == SideBuy && last.LessThanOrEqual(req.Price) {
			return req.Price, true
		}
	}
	return decimal.Zero, false
}
