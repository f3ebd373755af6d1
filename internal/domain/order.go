package domain

import "time"

// OrderStatus is a closed sum type for order lifecycle states.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the status can never change again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether an order in this status can still receive fills.
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderStatusNew, OrderStatusPending, OrderStatusPartiallyFilled:
		return true
	default:
		return false
	}
}

// Order is created by the execution engine on signal acceptance and mutated
// through AddFill, Cancel, Reject and UndoFillsFromThisCall; the fill
// simulator additionally rewrites Signal.OrderType when a stop triggers and
// sets Status and RemainingQuantity directly for IOC/FOK handling.
// IsActive is derived from Status rather than stored separately.
type Order struct {
	OrderID            string      `json:"order_id"`
	Signal             Signal      `json:"signal"`
	Status             OrderStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	FilledQuantity     float64     `json:"filled_quantity"`
	RemainingQuantity  float64     `json:"remaining_quantity"`
	AverageFillPrice   float64     `json:"average_fill_price"`
	Fills              []Fill      `json:"fills"`
	TotalFee           float64     `json:"total_fee"`
	RejectionReason    string      `json:"rejection_reason,omitempty"`
}

// NewOrder constructs a freshly submitted order in status NEW.
func NewOrder(orderID string, signal Signal, now time.Time) *Order {
	return &Order{
		OrderID:           orderID,
		Signal:            signal,
		Status:            OrderStatusNew,
		CreatedAt:         now,
		UpdatedAt:         now,
		RemainingQuantity: signal.Quantity,
		Fills:             make([]Fill, 0, 1),
	}
}

// IsActive reports whether the order can still receive fills.
func (o *Order) IsActive() bool { return o.Status.IsActive() }

// AddFill appends a fill, updates filled/remaining quantity, the running
// average fill price, total fee, and recomputes status (FILLED when
// remaining <= 0, PARTIALLY_FILLED when 0 < filled < quantity).
func (o *Order) AddFill(f Fill, now time.Time) {
	prevFilled := o.FilledQuantity
	o.FilledQuantity += f.Quantity
	o.RemainingQuantity -= f.Quantity
	if o.RemainingQuantity < 0 {
		o.RemainingQuantity = 0
	}
	if o.FilledQuantity > 0 {
		o.AverageFillPrice = (o.AverageFillPrice*prevFilled + f.Price*f.Quantity) / o.FilledQuantity
	}
	o.TotalFee += f.Fee
	o.Fills = append(o.Fills, f)
	o.UpdatedAt = now

	switch {
	case o.RemainingQuantity <= 1e-9:
		o.Status = OrderStatusFilled
		o.RemainingQuantity = 0
	case o.FilledQuantity > 0:
		o.Status = OrderStatusPartiallyFilled
	}
}

// Cancel transitions the order to CANCELLED with a reason. It is a no-op
// if the order is already terminal.
func (o *Order) Cancel(reason string, now time.Time) {
	if o.Status.IsTerminal() {
		return
	}
	o.Status = OrderStatusCancelled
	o.RejectionReason = reason
	o.UpdatedAt = now
}

// Reject transitions the order to REJECTED with a structured reason, so
// callers see a terminal order in the history. Unlike Cancel it does not
// check whether the order is already terminal.
func (o *Order) Reject(reason string, now time.Time) {
	o.Status = OrderStatusRejected
	o.RejectionReason = reason
	o.UpdatedAt = now
}

// UndoFillsFromThisCall drops the last fillsThisCall fills and recomputes
// filled/remaining quantity, average fill price and total fee from the
// fills that remain (all zero when none remain). Used by the FOK
// time-in-force path: if an order does not fully fill in one simulator
// pass, every fill produced by that pass is undone.
func (o *Order) UndoFillsFromThisCall(fillsThisCall int) {
	if fillsThisCall <= 0 {
		return
	}
	o.Fills = o.Fills[:len(o.Fills)-fillsThisCall]
	o.FilledQuantity = 0
	o.RemainingQuantity = o.Signal.Quantity
	o.AverageFillPrice = 0
	o.TotalFee = 0
	for _, f := range o.Fills {
		o.FilledQuantity += f.Quantity
		o.TotalFee += f.Fee
	}
	if o.FilledQuantity > 0 {
		sum := 0.0
		for _, f := range o.Fills {
			sum += f.Price * f.Quantity
		}
		o.AverageFillPrice = sum / o.FilledQuantity
	}
	o.RemainingQuantity = o.Signal.Quantity - o.FilledQuantity
}
