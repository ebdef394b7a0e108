package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterCommitOutsideTransactionRunsImmediately(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
}

func TestAfterCommitDeferredUntilCommitted(t *testing.T) {
	ctx := context.Background()
	txCtx, st := Begin(ctx, "handle")

	var order []int
	AfterCommit(txCtx, func(context.Context) { order = append(order, 1) })
	AfterCommit(txCtx, func(context.Context) { order = append(order, 2) })
	assert.Empty(t, order)
	assert.True(t, InTransaction(txCtx))
	assert.False(t, InTransaction(ctx))

	st.Committed(ctx)
	assert.Equal(t, []int{1, 2}, order)

	st.Committed(ctx)
	assert.Equal(t, []int{1, 2}, order, "hooks run once")
}
