package pnt

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) (*Loop, *obsstore.Store) {
	t.Helper()
	store := obsstore.New()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	l := NewLoop(store, NullPNT, logger)
	l.Start()
	t.Cleanup(l.Stop)
	return l, store
}

func TestEnqueuePublishesSingleWhenEpochHasObservations(t *testing.T) {
	l, _ := newTestLoop(t)

	now := time.Now()
	l.Enqueue(1, &obsstore.Epoch{Time: now, N: 2})

	require.Eventually(t, func() bool {
		_, ok := l.Solution(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	sol, _ := l.Solution(1)
	require.Equal(t, gnssgo.RTK_STATUS_SINGLE, sol.Status.Status)
	require.Equal(t, now, sol.Time)
}

func TestEnqueuePublishesNoneWhenEpochIsEmpty(t *testing.T) {
	l, _ := newTestLoop(t)

	l.Enqueue(1, &obsstore.Epoch{Time: time.Now(), N: 0})

	require.Eventually(t, func() bool {
		_, ok := l.Solution(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	sol, _ := l.Solution(1)
	require.Equal(t, gnssgo.RTK_STATUS_NONE, sol.Status.Status)
}

func TestSolutionsAreIndependentPerSource(t *testing.T) {
	l, _ := newTestLoop(t)

	l.Enqueue(1, &obsstore.Epoch{Time: time.Now(), N: 1})
	l.Enqueue(2, &obsstore.Epoch{Time: time.Now(), N: 0})

	require.Eventually(t, func() bool {
		_, ok1 := l.Solution(1)
		_, ok2 := l.Solution(2)
		return ok1 && ok2
	}, time.Second, 5*time.Millisecond)

	sol1, _ := l.Solution(1)
	sol2, _ := l.Solution(2)
	require.Equal(t, gnssgo.RTK_STATUS_SINGLE, sol1.Status.Status)
	require.Equal(t, gnssgo.RTK_STATUS_NONE, sol2.Status.Status)
}

func TestFailingKernelPublishesNone(t *testing.T) {
	store := obsstore.New()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	failingFn := func(_ context.Context, _ *obsstore.Epoch, _ *Solution) (*Solution, error) {
		return nil, errors.New("pntpos: no solution")
	}
	l := NewLoop(store, failingFn, logger)
	l.Start()
	t.Cleanup(l.Stop)

	l.Enqueue(1, &obsstore.Epoch{Time: time.Now(), N: 1})

	require.Eventually(t, func() bool {
		_, ok := l.Solution(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	sol, _ := l.Solution(1)
	require.Equal(t, gnssgo.RTK_STATUS_NONE, sol.Status.Status)
}
