package widget

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches the widget. It runs at most once at a time.
type LoadFunc func(ctx context.Context) (Widget, error)

// Loader holds the process-wide widget. Concurrent callers share one
// in-flight load, a successful load is kept for the life of the process and
// a failed one is retried by the next caller.
type Loader struct {
	load  LoadFunc
	group singleflight.Group

	mu     sync.Mutex
	widget Widget
}

func NewLoader(load LoadFunc) *Loader {
	return &Loader{load: load}
}

func (l *Loader) Get(ctx context.Context) (Widget, error) {
	if w := l.loaded(); w != nil {
		return w, nil
	}

	ch := l.group.DoChan("widget", func() (any, error) {
		if w := l.loaded(); w != nil {
			return w, nil
		}
		// Detached so one caller giving up does not fail the others.
		w, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				err = &LoadError{Err: err}
			}
			return nil, err
		}
		l.mu.Lock()
		l.widget = w
		l.mu.Unlock()
		return w, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Widget), nil
	}
}

func (l *Loader) loaded() Widget {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.widget
}
