package cancel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToken_CancelOnce(t *testing.T) {
	tok := New(context.Background())
	assert.False(t, tok.Cancelled())
	assert.NoError(t, tok.Err())

	calls := 0
	tok.OnCancel(func() { calls++ })

	tok.Cancel()
	tok.Cancel()

	assert.True(t, tok.Cancelled())
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, tok.Err(), ErrCancelled)
	assert.ErrorIs(t, context.Cause(tok.Context()), ErrCancelled)

	select {
	case <-tok.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestToken_HooksRunInOrder(t *testing.T) {
	tok := New(context.Background())
	var order []int
	for i := range 3 {
		tok.OnCancel(func() { order = append(order, i) })
	}
	tok.Cancel()
	assert.Equal(t, []int{0, 1, 2}, order)

	// late registration runs immediately
	late := false
	tok.OnCancel(func() { late = true })
	assert.True(t, late)
}

func TestToken_ConcurrentCancel(t *testing.T) {
	tok := New(context.Background())
	var mu sync.Mutex
	calls := 0
	tok.OnCancel(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestToken_ParentContext(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	tok := New(parent)
	stop()

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation not propagated")
	}
	// parent ending is not an explicit cancel
	assert.False(t, tok.Cancelled())
}
