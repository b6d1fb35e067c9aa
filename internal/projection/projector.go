package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/readmodel"
)

// Projector folds order events into the order read model. Events at or
// below the version already projected are skipped, so redelivery is harmless.
type Projector struct {
	orders store.OrderReadStore
	logger zerolog.Logger
}

func NewProjector(orders store.OrderReadStore) *Projector {
	return &Projector{
		orders: orders,
		logger: logging.Component("projector"),
	}
}

// HandleEvent decodes a published event and projects it.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	return p.Project(ctx, event)
}

func (p *Projector) Project(ctx context.Context, event store.Event) error {
	if event.AggregateType != order.AggregateType {
		return nil
	}

	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("order_ref", event.AggregateID).
		Int("version", event.Version).
		Msg("projecting event")

	switch event.EventType {
	case order.EventOrderCreated:
		var e order.OrderCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.created(ctx, event.Version, e)

	case order.EventOrderAwaitingPayment:
		var e order.OrderAwaitingPayment
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.update(ctx, event, func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusAwaitingPayment)
			o.UpdatedAt = e.At
		})

	case order.EventPaymentAttemptRecorded:
		var e order.PaymentAttemptRecorded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.update(ctx, event, func(o *readmodel.OrderReadModel) {
			o.Attempts = append(o.Attempts, attemptModel(e.Attempt))
			o.UpdatedAt = e.Attempt.RecordedAt
		})

	case order.EventOrderVerified:
		var e order.OrderVerified
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.update(ctx, event, func(o *readmodel.OrderReadModel) {
			verifiedAt := e.VerifiedAt
			o.Status = string(order.StatusVerified)
			o.PaymentRef = e.Attempt.PaymentRef
			o.Attempts = append(o.Attempts, attemptModel(e.Attempt))
			o.VerifiedAt = &verifiedAt
			o.UpdatedAt = e.VerifiedAt
		})

	case order.EventOrderFailed:
		var e order.OrderFailed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.update(ctx, event, func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusFailed)
			o.FailureReason = e.Reason
			if e.Attempt != nil {
				o.Attempts = append(o.Attempts, attemptModel(*e.Attempt))
			}
			o.UpdatedAt = e.FailedAt
		})

	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.update(ctx, event, func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusCancelled)
			o.FailureReason = e.Reason
			o.UpdatedAt = e.CancelledAt
		})
	}

	return nil
}

func (p *Projector) created(ctx context.Context, version int, e order.OrderCreated) error {
	_, err := p.orders.GetOrder(ctx, e.OrderRef)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	items := make([]readmodel.OrderItemReadModel, len(e.Items))
	for i, item := range e.Items {
		items[i] = readmodel.OrderItemReadModel{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice,
		}
	}
	return p.orders.UpsertOrder(ctx, &readmodel.OrderReadModel{
		Ref:        e.OrderRef,
		ID:         e.OrderID,
		Items:      items,
		Amount:     e.Amount,
		Currency:   e.Currency,
		BuyerName:  e.Buyer.Name,
		BuyerEmail: e.Buyer.Email,
		BuyerPhone: e.Buyer.Phone,
		Status:     string(order.StatusCreated),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.CreatedAt,
		Version:    version,
	})
}

func (p *Projector) update(ctx context.Context, event store.Event, fn func(*readmodel.OrderReadModel)) error {
	return p.orders.UpdateOrder(ctx, event.AggregateID, func(o *readmodel.OrderReadModel) {
		if event.Version <= o.Version {
			return
		}
		fn(o)
		o.Version = event.Version
	})
}

func attemptModel(a order.PaymentAttempt) readmodel.PaymentAttemptReadModel {
	return readmodel.PaymentAttemptReadModel{
		PaymentRef: a.PaymentRef,
		Outcome:    string(a.Outcome),
		Detail:     a.Detail,
		RecordedAt: a.RecordedAt,
	}
}
