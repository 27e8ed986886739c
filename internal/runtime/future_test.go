package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ResolveAndGet(t *testing.T) {
	f := NewFuture[int]()

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Resolve(42)
	}()

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFuture_Fail(t *testing.T) {
	boom := errors.New("boom")
	f := NewFuture[int]()
	f.Fail(boom)

	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuture_FirstCompletionWins(t *testing.T) {
	f := NewFuture[int]()
	f.Resolve(1)
	f.Resolve(2)
	f.Fail(errors.New("late"))

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFuture_GetRespectsContext(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The future itself is still pending and can complete later.
	f.Resolve(7)
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFuture_TryGet(t *testing.T) {
	f := NewFuture[string]()

	_, _, ok := f.TryGet()
	assert.False(t, ok)

	f.Resolve("done")
	v, err, ok := f.TryGet()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestFuture_Done(t *testing.T) {
	f := ResolvedFuture("x")
	select {
	case <-f.Done():
	default:
		t.Fatal("resolved future should have a closed Done channel")
	}
}

func TestFailedFuture(t *testing.T) {
	boom := errors.New("boom")
	f := FailedFuture[int](boom)
	_, err, ok := f.TryGet()
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
}
