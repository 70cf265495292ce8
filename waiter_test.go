package corofleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWaiter(timeout, interval time.Duration) *ConvergenceWaiter {
	fanout := NewNodeFanout(nil, 4)
	return NewConvergenceWaiter(nil, fanout,
		WithWaitTimeout(timeout), WithPollInterval(interval))
}

func TestWaiterConverges(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string]int{}

	w := testWaiter(2*time.Second, 5*time.Millisecond)
	results, err := w.WaitNodes(context.Background(), "start", []string{"node-a", "node-b"},
		func(ctx context.Context, node string) error {
			mu.Lock()
			defer mu.Unlock()
			attempts[node]++
			if attempts[node] < 3 {
				return errors.New("not yet")
			}
			return nil
		})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.OK)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts["node-a"], 3)
}

func TestWaiterTimesOut(t *testing.T) {
	w := testWaiter(30*time.Millisecond, 5*time.Millisecond)
	results, err := w.WaitNodes(context.Background(), "start", []string{"node-a"},
		func(ctx context.Context, node string) error {
			return errors.New("never ready")
		})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Message, "timed out")
	assert.Contains(t, results[0].Message, "never ready")
}

func TestWaiterFatalErrorsFailFast(t *testing.T) {
	var calls int
	var mu sync.Mutex

	start := time.Now()
	w := testWaiter(5*time.Second, 10*time.Millisecond)
	_, err := w.WaitNodes(context.Background(), "start", []string{"node-a"},
		func(ctx context.Context, node string) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return ErrNotAuthorized
		})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "fatal errors must not wait for the deadline")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "fatal errors must stop polling immediately")

	var nodeErrs *NodeErrors
	require.ErrorAs(t, err, &nodeErrs)
	require.Len(t, nodeErrs.Failed(), 1)
	assert.ErrorIs(t, nodeErrs.Failed()[0].Err, ErrNotAuthorized)
}

func TestWaitLocal(t *testing.T) {
	attempts := 0
	w := testWaiter(2*time.Second, 5*time.Millisecond)
	err := w.WaitLocal(context.Background(), "stop", func(ctx context.Context, node string) error {
		attempts++
		if attempts < 2 {
			return errors.New("still running")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
