package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// FulfillmentError reports that the completed transition failed and the
// order was left in its prior status. The wrapped cause carries the failing
// line's detail (typically *product.InsufficientStockError).
type FulfillmentError struct {
	OrderID string
	Err     error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("fulfillment failed for order %s: %v", e.OrderID, e.Err)
}

func (e *FulfillmentError) Unwrap() error { return e.Err }

// Lifecycle drives order status transitions. Plain transitions are a single
// conditional update; the transition into completed additionally commits the
// one-time fulfillment side effects through the Fulfiller.
type Lifecycle struct {
	orders    Repository
	fulfiller Fulfiller
}

// NewLifecycle creates a Lifecycle manager.
func NewLifecycle(orders Repository, fulfiller Fulfiller) *Lifecycle {
	return &Lifecycle{orders: orders, fulfiller: fulfiller}
}

// Transition moves an order to the target status, enforcing the transition
// table. Re-sending completed for an already-completed order is an idempotent
// no-op: stock and coupon usage are never touched twice.
func (l *Lifecycle) Transition(ctx context.Context, orderID string, to Status) (*Order, error) {
	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == StatusCompleted && to == StatusCompleted {
		return o, nil
	}
	if !o.Status.CanTransition(to) {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: to}
	}

	if to == StatusCompleted {
		return l.complete(ctx, o)
	}

	updated, err := l.orders.UpdateStatus(ctx, orderID, []Status{o.Status}, to)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return l.retryAfterRace(ctx, orderID, to)
		}
		return nil, err
	}
	return updated, nil
}

// complete commits the completed transition. The Fulfiller performs the
// status change, stock decrements, and coupon usage increment in one
// transaction, so a failing line leaves everything untouched.
func (l *Lifecycle) complete(ctx context.Context, o *Order) (*Order, error) {
	if err := l.fulfiller.Fulfill(ctx, o); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return l.retryAfterRace(ctx, o.ID, StatusCompleted)
		}
		return nil, &FulfillmentError{OrderID: o.ID, Err: err}
	}

	return l.orders.GetByID(ctx, o.ID)
}

// retryAfterRace re-reads an order after a conditional update matched zero
// rows. A concurrent request moved the order first; if it landed on the same
// target the retry is a no-op, otherwise the transition is invalid against
// the new status.
func (l *Lifecycle) retryAfterRace(ctx context.Context, orderID string, to Status) (*Order, error) {
	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == to {
		return o, nil
	}
	return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: to}
}
