package widget

import (
	"context"
	"sync"
)

// Fake is a deterministic Widget for tests. Respond decides the outcome; with
// no Respond the fake waits for ctx, like a buyer who never returns.
type Fake struct {
	Respond func(ctx context.Context, cfg Config) (Outcome, error)

	mu     sync.Mutex
	opened []Config
}

func (f *Fake) Open(ctx context.Context, cfg Config) (Outcome, error) {
	f.mu.Lock()
	f.opened = append(f.opened, cfg)
	respond := f.Respond
	f.mu.Unlock()

	if respond == nil {
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	}
	return respond(ctx, cfg)
}

// Opened returns the configs the widget was opened with.
func (f *Fake) Opened() []Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Config(nil), f.opened...)
}

// Dismiss responds as a buyer closing the widget.
func Dismiss(ctx context.Context, cfg Config) (Outcome, error) {
	return Outcome{Result: Dismissed, OrderRef: cfg.OrderRef}, nil
}

// Decline responds as a processor refusing the payment.
func Decline(description string) func(ctx context.Context, cfg Config) (Outcome, error) {
	return func(ctx context.Context, cfg Config) (Outcome, error) {
		return Outcome{Result: Failed, OrderRef: cfg.OrderRef, Description: description}, nil
	}
}
