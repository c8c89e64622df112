package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	t.Parallel()

	f := NewFuture()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Complete(42)
	}()
	result, ok, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, result)
	assert.False(t, f.Cancel("late"), "cancel after complete")
	assert.True(t, f.Done())

	f2 := NewFuture()
	assert.True(t, f2.Cancel("gone"))
	result, ok, err = f2.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "gone", result)

	f3 := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, ok, err = f3.Wait(ctx)
	assert.False(t, ok)
	assert.Equal(t, context.DeadlineExceeded, err)
}
