package eventloop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startLoop runs a loop for the duration of the test.
func startLoop(t *testing.T, queueSize int) (*eventloop.Loop, context.CancelFunc) {
	t.Helper()
	l := eventloop.New("test", zaptest.NewLogger(t), queueSize)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l, _ := startLoop(t, 16)
	ctx := context.Background()

	var got []int // only touched on the loop
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, l.Post(ctx, func(context.Context) { got = append(got, i) }))
	}

	var snapshot []int
	require.NoError(t, l.Do(ctx, func(context.Context) { snapshot = append(snapshot, got...) }))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, snapshot)
}

func TestLoop_DoInlineOnSameLoop(t *testing.T) {
	l, _ := startLoop(t, 1)
	ctx := context.Background()

	ran := false
	err := l.Do(ctx, func(taskCtx context.Context) {
		assert.True(t, l.On(taskCtx))
		// A nested Do on the same loop would deadlock if it were queued.
		assert.NoError(t, l.Do(taskCtx, func(context.Context) { ran = true }))
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, l.On(ctx))
}

func TestLoop_SurvivesPanic(t *testing.T) {
	l, _ := startLoop(t, 4)
	ctx := context.Background()

	require.NoError(t, l.Do(ctx, func(context.Context) { panic("boom") }))

	ran := false
	require.NoError(t, l.Do(ctx, func(context.Context) { ran = true }))
	assert.True(t, ran)
}

func TestLoop_TryPostDropsWhenFull(t *testing.T) {
	l, _ := startLoop(t, 1)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, l.Post(ctx, func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	assert.True(t, l.TryPost(func(context.Context) {}), "queue has one free slot")
	assert.False(t, l.TryPost(func(context.Context) {}), "queue is now full")
	assert.Equal(t, int64(1), l.Dropped())
	close(release)
}

func TestLoop_StoppedRejectsWork(t *testing.T) {
	l, cancel := startLoop(t, 1)
	cancel()
	<-l.Done()

	assert.ErrorIs(t, l.Post(context.Background(), func(context.Context) {}), eventloop.ErrStopped)
	assert.ErrorIs(t, l.Do(context.Background(), func(context.Context) {}), eventloop.ErrStopped)
	assert.False(t, l.TryPost(func(context.Context) {}))
}

func TestLoop_DoHonorsContext(t *testing.T) {
	l, _ := startLoop(t, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, l.Post(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestLoop_RunTwice(t *testing.T) {
	l, _ := startLoop(t, 1)
	// Wait until the first Run has claimed the loop.
	require.NoError(t, l.Do(context.Background(), func(context.Context) {}))
	assert.Error(t, l.Run(context.Background()))
}

func TestLoop_ConcurrentPosters(t *testing.T) {
	l, _ := startLoop(t, 8)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = l.Post(ctx, func(context.Context) { counter++ })
			}
		}()
	}
	wg.Wait()

	var total int
	require.NoError(t, l.Do(ctx, func(context.Context) { total = counter }))
	assert.Equal(t, 400, total)
}
