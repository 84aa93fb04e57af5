package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterConflicts(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), 3, func(ctx context.Context, attempt int) (int, error) {
		calls++
		if attempt < 2 {
			return 0, Conflict(errors.New("duplicate"))
		}
		return 42, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDoReReadShortCircuits(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), 5, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", ErrConflict
	}, func(ctx context.Context) (string, bool, error) {
		return "existing", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "existing", v)
	assert.Equal(t, 1, calls)
}

func TestDoExhausted(t *testing.T) {
	_, err := Do(context.Background(), 2, func(ctx context.Context, attempt int) (int, error) {
		return 0, Conflict(errors.New("address taken"))
	}, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDoFatalErrorStops(t *testing.T) {
	fatal := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), 5, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, fatal
	}, nil)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, 3, func(ctx context.Context, attempt int) (int, error) {
		return 1, nil
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
