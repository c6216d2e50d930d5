package pool

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func square(_ context.Context, n int) (int, error) {
	return n * n, nil
}

func TestRunCollectsEveryResult(t *testing.T) {
	t.Parallel()

	tasks := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	got := Run(context.Background(), New(4, zap.NewNop()), tasks, square)
	sort.Ints(got)
	require.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64, 81}, got)
}

func TestRunWorkerCountDoesNotChangeResults(t *testing.T) {
	t.Parallel()

	tasks := []int{3, 1, 4, 1, 5, 9, 2, 6}
	single := Run(context.Background(), New(1, zap.NewNop()), tasks, square)
	many := Run(context.Background(), New(8, zap.NewNop()), tasks, square)
	sort.Ints(single)
	sort.Ints(many)
	require.Equal(t, single, many)
}

func TestRunDropsFailuresAndPanics(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, n int) (int, error) {
		switch {
		case n%3 == 0:
			return 0, errors.New("boom")
		case n == 4:
			panic("bad input")
		}
		return n, nil
	}
	got := Run(context.Background(), New(2, zap.NewNop()), []int{1, 2, 3, 4, 5, 6}, fn)
	sort.Ints(got)
	require.Equal(t, []int{1, 2, 5}, got)
}

func TestRunAllFailuresYieldsEmpty(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", errors.New("unreachable")
	}
	got := Run(context.Background(), New(4, zap.NewNop()), []string{"a", "b", "c"}, fn)
	require.Empty(t, got)
	require.EqualValues(t, 3, calls.Load())
}

func TestRunEmptyTasks(t *testing.T) {
	t.Parallel()

	require.Empty(t, Run(context.Background(), New(4, nil), []int(nil), square))
}

func TestNewDefaultsWorkers(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultWorkers, New(0, nil).Workers())
	require.Equal(t, 7, New(7, nil).Workers())
}
