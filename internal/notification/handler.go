package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/email"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/readmodel"
)

const maxBackoff = 5 * time.Second

// ErrProjectionLagging means the read model has not caught up with the event yet.
var ErrProjectionLagging = errors.New("read model has not caught up")

// Handler processes events for sending notifications
type Handler struct {
	sender    email.Sender
	readStore store.OrderReadStore
	merchant  string
	retries   int
	backoff   time.Duration
	logger    zerolog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(sender email.Sender, readStore store.OrderReadStore, merchant string) *Handler {
	return &Handler{
		sender:    sender,
		readStore: readStore,
		merchant:  merchant,
		retries:   5,
		backoff:   200 * time.Millisecond,
		logger:    logging.Component("notifier"),
	}
}

// HandleEvent processes an event from the broker
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal event")
		return err
	}
	return h.Project(ctx, event)
}

// Project sends the payment confirmation once an order is verified.
func (h *Handler) Project(ctx context.Context, event store.Event) error {
	if event.AggregateType != order.AggregateType || event.EventType != order.EventOrderVerified {
		return nil
	}

	var e order.OrderVerified
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error().Err(err).Str("order_ref", event.AggregateID).Msg("failed to unmarshal OrderVerified event")
		return err
	}

	logger := h.logger.With().Str("order_ref", e.OrderRef).Logger()

	o, err := h.awaitOrder(ctx, e.OrderRef, event.Version)
	if err != nil {
		logger.Error().Err(err).Msg("order not available for notification")
		return err
	}

	items := make([]email.OrderItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	receipt := email.Receipt{
		Merchant:   h.merchant,
		BuyerName:  o.BuyerName,
		OrderID:    o.ID,
		PaymentRef: e.Attempt.PaymentRef,
		Currency:   e.Currency,
		Total:      e.Amount,
		Items:      items,
		PaidAt:     e.VerifiedAt,
	}
	if err := h.sender.SendPaymentConfirmation(ctx, o.BuyerEmail, receipt); err != nil {
		logger.Error().Err(err).Msg("failed to send payment confirmation")
		return err
	}

	logger.Info().Str("order_id", o.ID).Msg("payment confirmation sent")
	return nil
}

// awaitOrder waits briefly for the projector, which consumes the same stream.
func (h *Handler) awaitOrder(ctx context.Context, ref string, version int) (*readmodel.OrderReadModel, error) {
	delay := h.backoff
	for attempt := 0; ; attempt++ {
		o, err := h.readStore.GetOrder(ctx, ref)
		switch {
		case err == nil && o.Version >= version:
			return o, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		if attempt >= h.retries {
			return nil, fmt.Errorf("order %s at version %d: %w", ref, version, ErrProjectionLagging)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxBackoff {
			delay = maxBackoff
		}
	}
}
