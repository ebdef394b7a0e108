// Package storage defines the transaction boundary shared by the repositories.
package storage

import (
	"context"
	"sync"
)

// TxManager runs fn inside a single store transaction. Nested calls join the outer transaction.
// Any error returned by fn, or a panic, rolls the transaction back.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type stateKey struct{}

// TxState is attached to the context of a running transaction.
type TxState struct {
	Handle any

	mu    sync.Mutex
	hooks []func(context.Context)
}

// Begin returns a context bound to a new transaction state wrapping handle.
func Begin(ctx context.Context, handle any) (context.Context, *TxState) {
	st := &TxState{Handle: handle}
	return context.WithValue(ctx, stateKey{}, st), st
}

func State(ctx context.Context) (*TxState, bool) {
	st, ok := ctx.Value(stateKey{}).(*TxState)
	return st, ok
}

func InTransaction(ctx context.Context) bool {
	_, ok := State(ctx)
	return ok
}

// AfterCommit defers fn until the outermost transaction commits. Outside a transaction fn runs now.
// Hooks of a rolled back transaction are dropped.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	st, ok := State(ctx)
	if !ok {
		fn(ctx)
		return
	}
	st.mu.Lock()
	st.hooks = append(st.hooks, fn)
	st.mu.Unlock()
}

// Committed runs the registered hooks in order with ctx, which must not carry the finished transaction.
func (s *TxState) Committed(ctx context.Context) {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
}
