// Package cancel holds the single cancellation signal of a sync run.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by operations that stopped because the run was cancelled.
var ErrCancelled = errors.New("sync cancelled")

// Signal is the read side of a Token. The sync core only ever observes it.
type Signal interface {
	Cancelled() bool
	Done() <-chan struct{}
	Context() context.Context
}

// Token is the cancellation signal for one invocation. It is set at most once.
type Token struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	once      sync.Once

	mu    sync.Mutex
	hooks []func()
}

var _ Signal = (*Token)(nil)

// New creates a token whose context derives from parent.
func New(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{
		ctx:    ctx,
		cancel: func() { cancel(ErrCancelled) },
	}
}

// OnCancel registers a cleanup callback. Callbacks run synchronously, in
// registration order, inside the first Cancel call. Registering after the
// token was cancelled runs fn immediately.
func (t *Token) OnCancel(fn func()) {
	t.mu.Lock()
	if !t.cancelled.Load() {
		t.hooks = append(t.hooks, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn()
}

// Cancel sets the signal. Only the first call has any effect.
func (t *Token) Cancel() {
	t.once.Do(func() {
		t.mu.Lock()
		t.cancelled.Store(true)
		hooks := t.hooks
		t.hooks = nil
		t.mu.Unlock()

		t.cancel()
		for _, fn := range hooks {
			fn()
		}
	})
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the token is cancelled or its parent context ends.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context returns a context that ends when the token is cancelled.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Err returns ErrCancelled after Cancel, nil before.
func (t *Token) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Watch cancels the token on the first of sigs. Every later signal is handed
// to onRepeat so the host can decide to terminate. The returned func stops
// watching.
func Watch(t *Token, onRepeat func(os.Signal), sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case <-quit:
				return
			case sig := <-ch:
				if !t.Cancelled() {
					slog.Warn("interrupt received, draining", "signal", sig.String())
					t.Cancel()
					continue
				}
				if onRepeat != nil {
					onRepeat(sig)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
