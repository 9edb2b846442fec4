package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	var transitions []string
	cb := New(Settings{
		Name:     "test",
		Trip:     2,
		Recover:  2,
		Cooldown: time.Minute,
		Now:      func() time.Time { return now },
		OnChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	cb := New(Settings{Trip: 1, Cooldown: time.Second, Now: func() time.Time { return now }})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(time.Second)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestCircuitBreaker_TrialLimit(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	cb := New(Settings{Trip: 1, Cooldown: time.Second, Trials: 1, Now: func() time.Time { return now }})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		inner := cb.Execute(ctx, ok)
		assert.ErrorIs(t, inner, ErrTrialLimit)
		assert.ErrorIs(t, inner, ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CountsFilter(t *testing.T) {
	ignored := errors.New("caller mistake")
	cb := New(Settings{Trip: 1, Counts: func(err error) bool { return !errors.Is(err, ignored) }})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return ignored })
	}
	assert.Equal(t, StateClosed, cb.State())
}
