package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/glam-checkout/internal/infrastructure/store"
)

// EventHandler consumes one committed event
type EventHandler interface {
	Project(ctx context.Context, event store.Event) error
}

// InlinePublisher hands committed events straight to in-process handlers.
// It stands in for a broker when the whole pipeline runs in one binary.
type InlinePublisher struct {
	handlers []EventHandler
}

func NewInlinePublisher(handlers ...EventHandler) *InlinePublisher {
	return &InlinePublisher{handlers: handlers}
}

func (p *InlinePublisher) Publish(ctx context.Context, key string, event any) error {
	e, ok := event.(store.Event)
	if !ok {
		return fmt.Errorf("inline publisher: unexpected event type %T", event)
	}
	var errs []error
	for _, h := range p.handlers {
		if err := h.Project(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
